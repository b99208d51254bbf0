// Package exchange is the public façade over the matching core: the trading
// pair registry, decimal boundary conversion, and the gateway that routes
// place/cancel/query commands to per-pair engines.
package exchange
