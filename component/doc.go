// Package component defines the contract between the flow runtime and node
// implementations.
//
// A node type is registered once with a Registration whose Factory builds a
// Behavior for each deployed instance. The runtime hands the factory a Node,
// the instance's handle on the runtime: sending, logging, status, context
// storage, events and teardown. Behaviors opt into lifecycle hooks by
// implementing Initializer, InputHandler, Starter and Closer, and advertise extra
// capabilities (CatchHandler, Injector, or their own interfaces such as a
// broker connection) that other nodes discover with a type assertion on
// Node.Behavior().
//
//	reg.Register(component.Registration{
//	    Type:     "transform",
//	    Category: component.CategoryProcessor,
//	    Factory: func(n component.Node) (component.Behavior, error) {
//	        return &transform{node: n}, nil
//	    },
//	})
package component
