// Package logx is the structured logger shared by every prayerfirst component.
//
// Logger is a value type over zerolog. Loggers derived from a Service follow
// its current sinks and level, so a config reload changes them in place.
// Console output is human readable; the optional file sink is JSON lines.
package logx
