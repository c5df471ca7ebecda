// Package telemetry provides structured logging for the debgen pipeline.
//
// The package wraps zerolog with component-scoped child loggers so that every
// pipeline stage (resolver, changelog, substitution builder, aggregator,
// template expander) logs under its own component field, tagged with the run
// ID of the generation run that produced it.
//
// # Usage
//
// Initialize a logger at startup and derive component loggers per stage:
//
//	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stderr",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resolverLog := logger.NewComponentLogger("resolver")
package telemetry
