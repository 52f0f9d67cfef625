package registry

import "reflect"

// funcPointer returns the entry point address of a HandlerFunc value. Two
// handler values registered from the same source expression compare equal;
// this is the closest Go gets to function identity and is what callers rely
// on when they re-present a handler to Unregister (§9 "Handler equality").
func funcPointer(f HandlerFunc) uintptr {
	if f == nil {
		return 0
	}

	return reflect.ValueOf(f).Pointer()
}
