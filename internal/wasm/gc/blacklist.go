// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package gc

// DefaultBlacklist enumerates exported symbol names that never serve as
// collection roots. These are compiler-emitted runtime helpers; an export
// of one of these names is always dropped, and its target survives only
// if something else reaches it.
var DefaultBlacklist = newBlacklist(
	"main",
	"rust_eh_personality",
	"memcpy",
	"memmove",
	"memset",
	"memcmp",
	"__ashldi3",
	"__ashlti3",
	"__ashrdi3",
	"__ashrti3",
	"__lshrdi3",
	"__lshrti3",
	"__floatsisf",
	"__floatsidf",
	"__floatdidf",
	"__floattisf",
	"__floattidf",
	"__floatunsisf",
	"__floatunsidf",
	"__floatundidf",
	"__floatuntisf",
	"__floatuntidf",
	"__fixsfsi",
	"__fixsfdi",
	"__fixsfti",
	"__fixdfsi",
	"__fixdfdi",
	"__fixdfti",
	"__fixunssfsi",
	"__fixunssfdi",
	"__fixunssfti",
	"__fixunsdfsi",
	"__fixunsdfdi",
	"__fixunsdfti",
	"__udivsi3",
	"__umodsi3",
	"__udivmodsi4",
	"__udivdi3",
	"__udivmoddi4",
	"__umoddi3",
	"__udivti3",
	"__udivmodti4",
	"__umodti3",
	"__powisf2",
	"__powidf2",
	"__addsf3",
	"__adddf3",
	"__subsf3",
	"__subdf3",
	"__divsi3",
	"__divdi3",
	"__divti3",
	"__divdf3",
	"__divsf3",
	"__modsi3",
	"__moddi3",
	"__modti3",
	"__divmodsi4",
	"__divmoddi4",
	"__muldi3",
	"__multi3",
	"__muldf3",
	"__mulsf3",
	"__mulosi4",
	"__mulodi4",
	"__muloti4",
)

func newBlacklist(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
