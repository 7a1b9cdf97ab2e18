// Package model groups the value types shared by the coordinator services.
//
// The `builder` sub-package describes a build agent and the immutable Vitals
// snapshot taken once per coordination step, `queue` describes the jobs
// waiting for (or running on) a builder, and `status` describes what an agent
// reports back about itself and the build it is running.
package model
