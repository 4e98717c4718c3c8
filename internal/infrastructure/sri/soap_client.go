package sri

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	"github.com/jcalvopina/facturacion-sri/pkg/logger"
)

// Namespaces de los WS offline del SRI.
const (
	nsRecepcion    = "http://ec.gob.sri.ws.recepcion"
	nsAutorizacion = "http://ec.gob.sri.ws.autorizacion"
)

// Plantillas de envelope SOAP 1.1. El SRI no exige SOAPAction; el cuerpo es
// un único elemento con el payload en Base64 (recepción) o la clave de acceso
// (autorización).
const (
	envelopeValidar = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ec="%s"><soapenv:Header/><soapenv:Body><ec:validarComprobante><xml>%s</xml></ec:validarComprobante></soapenv:Body></soapenv:Envelope>`
	envelopeAutorizar = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ec="%s"><soapenv:Header/><soapenv:Body><ec:autorizacionComprobante><claveAccesoComprobante>%s</claveAccesoComprobante></ec:autorizacionComprobante></soapenv:Body></soapenv:Envelope>`
)

// SRIClient define el puerto de salida hacia los WS del SRI. La implementación
// concreta usa SOAP; para tests se inyecta un stub. Ningún método reintenta:
// la política de reintentos pertenece al orquestador.
type SRIClient interface {
	// EnviarComprobante envía el XML firmado al WS de recepción y devuelve el
	// texto crudo de la respuesta SOAP, sin interpretar.
	EnviarComprobante(ctx context.Context, signedXML []byte) (string, error)
	// ConsultarAutorizacion consulta la autorización por clave de acceso y
	// devuelve el texto crudo de la respuesta SOAP.
	ConsultarAutorizacion(ctx context.Context, claveAcceso string) (string, error)
}

// SOAPClient implementa SRIClient contra los endpoints inyectados
// (celcer pruebas / cel producción, o un stub local).
type SOAPClient struct {
	recepcionURL    string
	autorizacionURL string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewSOAPClient construye el cliente con un timeout de red generoso (60 s):
// el WS del SRI puede tardar varios segundos en responder.
func NewSOAPClient(recepcionURL, autorizacionURL string, log *logger.Logger) *SOAPClient {
	return &SOAPClient{
		recepcionURL:    recepcionURL,
		autorizacionURL: autorizacionURL,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		log:             log,
	}
}

// EnviarComprobante codifica los bytes firmados en Base64 y hace un único POST
// al WS de recepción. Devuelve el cuerpo crudo aun con status no-2xx: un SOAP
// Fault puede llegar con 500 y el parser debe verlo.
func (c *SOAPClient) EnviarComprobante(ctx context.Context, signedXML []byte) (string, error) {
	payload := base64.StdEncoding.EncodeToString(signedXML)
	envelope := fmt.Sprintf(envelopeValidar, nsRecepcion, payload)
	return c.post(ctx, "validarComprobante", c.recepcionURL, envelope, "")
}

// ConsultarAutorizacion hace un único POST al WS de autorización con la clave
// de acceso del comprobante.
func (c *SOAPClient) ConsultarAutorizacion(ctx context.Context, claveAcceso string) (string, error) {
	envelope := fmt.Sprintf(envelopeAutorizar, nsAutorizacion, claveAcceso)
	return c.post(ctx, "autorizacionComprobante", c.autorizacionURL, envelope, claveAcceso)
}

func (c *SOAPClient) post(ctx context.Context, operacion, url, envelope, claveAcceso string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(envelope))
	if err != nil {
		return "", fmt.Errorf("%w: crear request %s: %v", domain.ErrTransporte, operacion, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logError(operacion, claveAcceso, err)
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s cancelado o timeout: %v", domain.ErrTransporte, operacion, ctx.Err())
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTransporte, operacion, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		c.logError(operacion, claveAcceso, err)
		return "", fmt.Errorf("%w: leer respuesta de %s: %v", domain.ErrTransporte, operacion, err)
	}

	// Status no-2xx con cuerpo: se devuelve el cuerpo tal cual (puede ser un
	// SOAP Fault) y ningún error de transporte.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().
			Str("operacion", operacion).
			Str("clave_acceso", claveAcceso).
			Int("status", resp.StatusCode).
			Msg("WS SRI respondió con status no exitoso; se entrega el cuerpo al parser")
		if len(rawBody) == 0 {
			return "", fmt.Errorf("%w: %s: status %d sin cuerpo", domain.ErrTransporte, operacion, resp.StatusCode)
		}
	}
	return string(rawBody), nil
}

func (c *SOAPClient) logError(operacion, claveAcceso string, err error) {
	c.log.Error().
		Str("operacion", operacion).
		Str("clave_acceso", claveAcceso).
		Err(err).
		Msg("fallo de transporte contra el WS SRI")
}

var _ SRIClient = (*SOAPClient)(nil)
