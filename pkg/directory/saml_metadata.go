package directory

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"strings"

	saml2types "github.com/russellhaering/gosaml2/types"

	"github.com/stationhq/gatehouse/pkg/identity"
)

const redirectBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"

// idpMetadata is what a SAML update prefill extracts from an IdP metadata
// document: the entity id, the SSO endpoint and PEM signing certificates.
type idpMetadata struct {
	EntityID     string
	SSOURL       string
	Certificates []string
}

// parseIDPMetadata extracts connection fields from an IdP metadata XML
// document. Each certificate must parse as DER X.509 before it is
// re-encoded to PEM and applied.
func parseIDPMetadata(data []byte) (*idpMetadata, error) {
	var descriptor saml2types.EntityDescriptor
	if err := xml.Unmarshal(data, &descriptor); err != nil {
		return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "malformed metadata document"}
	}
	if descriptor.IDPSSODescriptor == nil {
		return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "metadata has no IDPSSODescriptor"}
	}

	meta := &idpMetadata{EntityID: descriptor.EntityID}

	// prefer the HTTP-Redirect binding, fall back to the first endpoint
	for _, svc := range descriptor.IDPSSODescriptor.SingleSignOnServices {
		if svc.Binding == redirectBinding {
			meta.SSOURL = svc.Location
			break
		}
	}
	if meta.SSOURL == "" && len(descriptor.IDPSSODescriptor.SingleSignOnServices) > 0 {
		meta.SSOURL = descriptor.IDPSSODescriptor.SingleSignOnServices[0].Location
	}
	if meta.SSOURL == "" {
		return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "metadata has no SingleSignOnService endpoint"}
	}

	for _, kd := range descriptor.IDPSSODescriptor.KeyDescriptors {
		if kd.Use != "" && kd.Use != "signing" {
			continue
		}
		for _, xcert := range kd.KeyInfo.X509Data.X509Certificates {
			raw, err := base64.StdEncoding.DecodeString(compactBase64(xcert.Data))
			if err != nil {
				return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "certificate is not valid base64"}
			}
			if _, err := x509.ParseCertificate(raw); err != nil {
				return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "certificate does not parse"}
			}
			meta.Certificates = append(meta.Certificates, string(pem.EncodeToMemory(&pem.Block{
				Type:  "CERTIFICATE",
				Bytes: raw,
			})))
		}
	}
	if len(meta.Certificates) == 0 {
		return nil, &identity.ValidationError{Field: "metadata_xml", Reason: "metadata has no signing certificate"}
	}

	return meta, nil
}

// validatePEMCertificate checks a PEM-encoded certificate supplied
// directly on a connection update
func validatePEMCertificate(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return &identity.ValidationError{Field: "x509_certificate", Reason: "not PEM encoded"}
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return &identity.ValidationError{Field: "x509_certificate", Reason: "certificate does not parse"}
	}
	return nil
}

func compactBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
