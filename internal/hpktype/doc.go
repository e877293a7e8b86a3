// Package hpktype defines shared types used across the hpk package and its
// internal packages. This avoids circular imports between hpk and the codec,
// layout and file packages.
package hpktype
