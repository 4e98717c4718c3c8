// Package sri: interfaz para firma digital de comprobantes XML (XAdES-BES, SRI).

package sri

import "crypto/tls"

// Signer firma el XML de un comprobante y devuelve el XML con la firma
// envolvente (ds:Signature como último hijo del elemento raíz).
type Signer interface {
	// Sign toma el XML del comprobante (sin firma) y el certificado con llave
	// privada, y retorna los bytes firmados. Los bytes de entrada no se
	// re-serializan antes de calcular el digest: la validez de la firma
	// depende del contenido byte a byte.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
