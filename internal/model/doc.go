// Package model defines the core value types shared across the pipeline:
// trades as parsed from the upstream feed, completed tick candles, and the
// in-progress partial candle view. It also owns the wire codec used for
// broker fan-out messages.
//
// Trade and Candle are immutable by convention: they are created once (on
// parse or on bucket completion) and copied by value from then on.
package model
