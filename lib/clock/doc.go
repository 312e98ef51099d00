// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations so that components with
// timing behavior (the source trigger's poll loop, the deploy action's
// bounded wait) can be tested deterministically.
//
// Production code injects [Real]; tests inject [Fake] and advance it
// explicitly. Any production function that would call time.Now,
// time.After, time.NewTicker, or time.Sleep takes a Clock instead.
package clock
