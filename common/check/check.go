package check

import "fmt"

// PanicIfErr panics on a non-nil error.
// Use it for conditions that indicate a programming error, never for
// failures the caller is expected to handle.
func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// PanicIfNot panics on false.
func PanicIfNot(flag bool) {
	if !flag {
		panic("condition not met")
	}
}

// PanicIfNotf panics on false with a formatted message.
func PanicIfNotf(flag bool, format string, args ...any) {
	if !flag {
		panic(fmt.Sprintf(format, args...))
	}
}

// PanicIff panics on true with a formatted message.
func PanicIff(flag bool, format string, args ...any) {
	PanicIfNotf(!flag, format, args...)
}
