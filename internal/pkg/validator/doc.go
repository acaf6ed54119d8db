// Package validator validates request structs through struct tags.
//
// Usecases depend on the Validator interface; V10Validator is the
// go-playground/validator implementation with English messages and the
// custom rules used by this service.
package validator
