// Package client provides a load generator for the demo web server.
//
// Each request is a fire-and-forget job on its own worker.Pool: the pool size
// is the number of concurrent connections. RunRequests closes the pool before
// returning, so every submitted request has finished when it reports.
//
// # Basic Usage
//
//	config := client.DefaultConfig()
//	config.Addr = "127.0.0.1:7878"
//	config.SleepRatio = 0.2 // 20% GET /sleep
//
//	cl := client.New(config, nil)
//	result, err := cl.RunRequests(ctx, 500)
//	fmt.Print(result.Report())
package client
