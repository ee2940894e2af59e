// Package config loads and validates the gateway configuration.
//
// Configuration comes from a YAML file with WISUN_* environment
// variables layered on top, so secrets (the Route-B credentials, MQTT
// password, API auth secret) can stay out of the file entirely:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Load fills defaults for anything omitted and rejects configs that
// cannot work, e.g. a malformed Route-B ID or an auth secret too short
// to sign tokens with. Keep the file itself at 0600; it may hold
// credentials in development setups.
package config
