// Package compiler turns code image sources into manifests.
//
// A code image is a CUE document with a single top-level "program" struct:
//
//	program: {
//		name:        "counter"
//		version:     1
//		upgradeable: true
//		message: {
//			increment: {}
//			add: args: {by: int}
//			upgrade: {
//				args: {code_hash: string}
//				requires: ["upgrade"]
//			}
//		}
//	}
//
// Compilation uses the CUE SDK's Go API directly (not a CLI subprocess).
// The manifest says which program implementation the image selects and
// what it accepts; the bytes of the source are what the code hash names.
package compiler
