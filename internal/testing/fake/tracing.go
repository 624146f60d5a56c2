package fake

import opentracing "github.com/opentracing/opentracing-go"

// GetTracerForAddrEmpty is used to mock `tracing.GetTracerForAddr` with an
// empty tracer.
func GetTracerForAddrEmpty(_ string) (opentracing.Tracer, error) {
	return opentracing.NoopTracer{}, nil
}
