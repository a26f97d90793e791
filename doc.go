// Package sshclient provides a resilient SSH client for remote file
// transfer and command execution.
//
// This package provides:
//   - File transfer (get/put) over SFTP channels
//   - Command execution, both blocking and streaming
//   - Retry logic with exponential backoff for transient failures
//   - Classification of failures into transient and fatal (authorization)
//   - Support for password and private key authentication
//
// # Basic Usage
//
// Create a client, connect, and run a command:
//
//	client, err := sshclient.New(sshclient.Config{
//		Host:    "example.com",
//		Port:    22,
//		User:    "deploy",
//		KeyPath: "~/.ssh/id_ed25519",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	resp, err := client.Exec(ctx, "uptime")
//
// # File Transfer
//
// Uploads take a Payload, which must be re-readable so failed attempts can
// retry from the start of the content:
//
//	err = client.Put(ctx, "/remote/path/file.txt", sshclient.StringPayload("hello"))
//
//	r, err := client.Get(ctx, "/remote/path/file.txt")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close() // also releases the underlying SFTP channel
//
// # Retry Behavior
//
// Every stateful acquisition (the session itself, SFTP channels, exec
// channels) goes through the same retry engine. Transient failures such as
// "Connection reset" are retried with exponential backoff up to
// RetryPolicy.MaxAttempts; authentication failures are fatal immediately
// unless RetryPolicy.RetryAuth is set.
//
// A Client is not safe for concurrent use. Callers that need concurrency
// should check out one client per worker from a ClientPool.
package sshclient
