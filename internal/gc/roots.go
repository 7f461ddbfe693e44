package gc

// RootProvider supplies a heap's roots: interpreter frames, the event
// loop's protected callbacks, the extension registry's protected promise
// resolvers, the intrinsics table, and the module registry (spec.md §3.9).
type RootProvider interface {
	GCRoots(visit func(*Header))
}

type rootProviderFunc func(visit func(*Header))

func (f rootProviderFunc) GCRoots(visit func(*Header)) { f(visit) }

// RootProviderFunc adapts a plain function to a RootProvider.
func RootProviderFunc(f func(visit func(*Header))) RootProvider {
	return rootProviderFunc(f)
}
