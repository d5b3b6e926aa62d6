//go:build !audiographdebug

package audiograph

const defaultStrictValidation = false
