// Package contentcore provides a generic content management core: a registry
// of content types bound to pluggable storage backends, a CRUD facade that
// publishes lifecycle events around every backend call, and the composition
// root that wires both together with an optional search index.
//
// Feature code registers a content type once during setup:
//
//	core := contentcore.New(contentcore.WithLogger(logger))
//	setup := core.Setup()
//	def := contentcore.NewDefinition[Todo]("todo", memory.New[Todo]("todo"))
//	if err := setup.Register(def); err != nil { ... }
//
// and later obtains a typed facade with TypedCrud, or the JSON facade used by
// the rpc package with Setup.Crud.
//
// Attributes
//
// Every item carries CommonFields (id, type, version, timestamps). The
// type-specific attributes are the type parameter T of Item[T]. Attributes
// coming from the wire are decoded strictly into T when the definition is
// registered, so untyped maps never travel past the boundary.
//
// Updates take a Patch keyed by attribute name. Only the keys present are
// written, so a patch can set a field back to false, zero or null while
// leaving every unsent field untouched.
package contentcore
