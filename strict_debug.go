//go:build audiographdebug

package audiograph

const defaultStrictValidation = true
