// Package httpserver holds the HTTP plumbing shared by the device intake
// and the forwarder record API: server lifecycle, middleware, and JSON
// response helpers.
//
// Routers are built by the owning packages with chi and wrapped here:
//
//	r := chi.NewRouter()
//	httpserver.UseDefaults(r, logger, cfg.CORS)
//	r.Get("/health", handleHealth)
//
//	srv := httpserver.New(cfg, r, logger)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package httpserver
