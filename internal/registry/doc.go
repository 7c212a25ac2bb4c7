// Package registry is the host's runtime code registry.
//
// It owns the code_images table and is the only component that rewrites an
// instance's code pointer. Upload stands in for the deployment pipeline
// that produces images; SetCodeHash is the runtime entry point a program
// reaches through its Env. SetCodeHash reports the outcome as a numeric
// ReturnCode, the way a runtime host function would, and ReturnCode.Err
// converts it into an error value at the boundary.
package registry
