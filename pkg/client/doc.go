// Package client talks to a tollgate server and verifies its tokens in
// backend applications.
//
// There are two halves. Client wraps the HTTP API: exchanging an admin
// password or a signed App Store transaction for a bearer token, verifying
// a receipt by transaction id, listing products and calling the metered
// generation route. LocalVerifier checks bearer tokens in-process with the
// shared signing secret, for services that sit behind the gateway and
// only need to know who is calling and what they are entitled to.
//
// # Exchanging a transaction
//
//	c := client.New("https://gate.example.com")
//	resp, err := c.ExchangeTransaction(ctx, signedTransaction)
//	if err != nil {
//	    var apiErr *client.APIError
//	    if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
//	        // subscription has expired
//	    }
//	    return err
//	}
//	token := resp.AccessToken
//
// # Protecting routes
//
//	verifier, err := client.NewLocalVerifier(secret, "HS256")
//	if err != nil {
//	    return err
//	}
//	mux.Handle("/muse", client.RequireEntitlement(verifier, "mechanical_muse", museHandler))
//
// Inside the handler, ClaimsFromContext returns the verified claims.
//
// # Testing
//
// Depend on the Verifier interface rather than *LocalVerifier. The
// tollgatetest package mints tokens and builds authenticated requests for
// a LocalVerifier without a running server.
package client
