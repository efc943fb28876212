// Package plugin defines the typed pipeline plugin protocol.
//
// A plugin instance plays exactly one role for one concrete pair of data types:
//
//	Source[Out]      GetOutput(ctx, *Out, *Blob) ReturnType
//	Filter[In, Out]  LoadData(ctx, In, topic) ReturnType, Process(ctx, *Out) ReturnType
//	Sink[In]         LoadData(ctx, In, topic) ReturnType
//
// Every data operation reports one of five ordered statuses (Success, Retry, Warning,
// Error, Critical). Detail travels through LastError, never through Go errors or
// panics. After Critical the instance must not be used again.
//
// Configuration follows the merge convention of package params: each instance seeds
// its defaults and merge-patches the caller's object on top, so the effective
// configuration is always total. Embed Base to get this behaviour:
//
//	type Counter struct {
//	    plugin.Base
//	    n int
//	}
//
//	func (c *Counter) SetParams(p params.Params) {
//	    eff := c.ApplyParams(params.Params{"start": 0}, p)
//	    c.n = eff.Int("start", 0)
//	}
//
// # Registration
//
// Drivers are named factories tagged with the protocol version of their role. A
// module, static or dynamically loaded, registers them through its entry point:
//
//	func RegisterDrivers(reg *plugin.Registry) error {
//	    return reg.Register(plugin.NewSourceDriver[params.Params]("counter",
//	        "emits an increasing count", func() plugin.Source[params.Params] { return &Counter{} }))
//	}
//
// The Registry rejects duplicate (server, name) pairs and refuses to instantiate a
// driver whose version differs from the host's contract. The version check always
// happens before the factory runs.
package plugin
