package story

// TextValue is a narrative field that is either a fixed string or a
// zero-arg generator producing a fresh value per playthrough. Generated
// values must be resolved once per session and memoized by the caller;
// Resolve on a dynamic value returns a new draw every call.
type TextValue struct {
	fixed string
	fn    func() string
}

// Text returns a fixed narrative value.
func Text(s string) TextValue {
	return TextValue{fixed: s}
}

// TextFn returns a narrative value generated at resolution time.
func TextFn(fn func() string) TextValue {
	return TextValue{fn: fn}
}

// Dynamic reports whether the value is backed by a generator.
func (v TextValue) Dynamic() bool {
	return v.fn != nil
}

// Resolve produces the narrative string. For dynamic values this invokes
// the generator.
func (v TextValue) Resolve() string {
	if v.fn != nil {
		return v.fn()
	}
	return v.fixed
}

// CoinValue is a signed coin delta that is either fixed or generated per
// playthrough. The zero CoinValue is "no delta" (IsSet reports false).
type CoinValue struct {
	fixed int
	fn    func() int
	set   bool
}

// Coins returns a fixed coin delta.
func Coins(n int) CoinValue {
	return CoinValue{fixed: n, set: true}
}

// CoinsFn returns a coin delta generated at resolution time.
func CoinsFn(fn func() int) CoinValue {
	return CoinValue{fn: fn, set: true}
}

// IsSet reports whether the node declares a coin delta at all.
func (v CoinValue) IsSet() bool {
	return v.set
}

// Dynamic reports whether the value is backed by a generator.
func (v CoinValue) Dynamic() bool {
	return v.fn != nil
}

// Resolve produces the coin delta. For dynamic values this invokes the
// generator.
func (v CoinValue) Resolve() int {
	if v.fn != nil {
		return v.fn()
	}
	return v.fixed
}
