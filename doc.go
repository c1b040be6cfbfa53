// Package unitimer provides a stopwatch-style Timer that reports elapsed time
// in whole seconds, milliseconds, microseconds or nanoseconds and can run a
// callback when it is stopped.
//
// A Timer starts running when it is created. Stop fixes the end instant and
// fires the callback; Reset starts a new measurement on the same Timer.
// Querying a duration before Stop returns DurationUnavailable rather than a
// partial value, while asking for an unknown Measurement is a programming
// error and panics.
package unitimer
