// Package app assembles mcpgate from a config.Config.
//
// New picks the cache and store backends, builds the OAuth client,
// connection manager, auth manager and catalog service, and puts the HTTP
// server in front of them. Run serves until its context is cancelled:
//
//	cfg, err := config.LoadConfig(dir)
//	if err != nil {
//	    return err
//	}
//	app.InitLogging(cfg.Logging, os.Stderr)
//	a, err := app.New(ctx, cfg, version)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	return a.Run(ctx)
package app
