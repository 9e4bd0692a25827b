// Package upstream defines the consumed contract of the remote identity
// service and provides two implementations: an HTTP/JSON client with
// OAuth2 client-credential service authentication and an in-memory fake
// for tests.
//
// The remote service is a black box. It owns SAML/OIDC protocol logic,
// magic-link cryptography, session issuance and all entity persistence;
// this package only transports requests and translates the remote error
// envelope into the façade's error taxonomy.
package upstream
