// Package eventbus decouples a producer (the distance sampler) from its
// consumers (LED logic, logging, recording) with a bounded subscriber list.
package eventbus
