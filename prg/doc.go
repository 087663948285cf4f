// Package prg implements the codec for the linearised Population Reference
// Graph (PRG): a self-describing stream of unsigned integers in which values
// 1-4 encode the DNA bases a,c,g,t and values >= 5 delimit variant sites.
// Odd markers open a site, the matching even marker (odd+1) separates its
// alleles and closes it.
package prg
