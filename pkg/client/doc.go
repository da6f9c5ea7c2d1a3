// Package client is the VeriChain Go SDK.
//
// It wraps the HTTP API of a VeriChain server: analysing a product image,
// certifying the result, and reading back history and health.
//
//	c, err := client.New("http://localhost:5000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, _ := os.Open("sneaker.jpg")
//	defer f.Close()
//
//	analysis, err := c.Analyze(ctx, "sneaker.jpg", f)
//	cert, err := c.Certify(ctx, client.CertifyRequest{
//	    ProductID:   analysis.ProductID,
//	    ProductName: analysis.ProductName,
//	    Confidence:  analysis.Confidence,
//	})
//	fmt.Println(cert.TxHash, cert.BlockNumber)
//
// When the server requires operator tokens for certification, pass one with
// WithBearerToken. Errors returned for non-2xx responses are *APIError and
// carry the HTTP status and the server's message.
package client
