package sri_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
	"github.com/jcalvopina/facturacion-sri/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "test", Level: "error"})
}

// TestEnviarComprobante_EnvelopeSOAP verifica que el cliente arma un envelope
// SOAP 1.1 con el XML firmado en Base64 dentro de validarComprobante.
func TestEnviarComprobante_EnvelopeSOAP(t *testing.T) {
	firmado := []byte(`<factura id="comprobante">...</factura>`)
	var recibido string
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		recibido = string(body)
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`<respuesta><estado>RECIBIDA</estado></respuesta>`))
	}))
	defer srv.Close()

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	raw, err := client.EnviarComprobante(context.Background(), firmado)
	require.NoError(t, err)

	assert.Contains(t, contentType, "text/xml")
	assert.Contains(t, recibido, "http://schemas.xmlsoap.org/soap/envelope/")
	assert.Contains(t, recibido, "http://ec.gob.sri.ws.recepcion")
	assert.Contains(t, recibido, "<ec:validarComprobante>")
	assert.Contains(t, recibido, base64.StdEncoding.EncodeToString(firmado),
		"el XML firmado viaja en Base64 dentro del elemento xml")
	assert.Contains(t, raw, "RECIBIDA")
}

func TestConsultarAutorizacion_EnvelopeSOAP(t *testing.T) {
	const clave = "1508202601179001234500110010020000001231234567811"
	var recibido string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		recibido = string(body)
		w.Write([]byte(`<respuesta><autorizaciones/></respuesta>`))
	}))
	defer srv.Close()

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	_, err := client.ConsultarAutorizacion(context.Background(), clave)
	require.NoError(t, err)

	assert.Contains(t, recibido, "http://ec.gob.sri.ws.autorizacion")
	assert.Contains(t, recibido, "<claveAccesoComprobante>"+clave+"</claveAccesoComprobante>")
}

// TestPost_StatusNoExitosoEntregaElCuerpo: un Fault del SRI puede llegar con
// status 500; el cuerpo se devuelve igual para que el parser lo interprete.
func TestPost_StatusNoExitosoEntregaElCuerpo(t *testing.T) {
	fault := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><soap:Fault><faultstring>boom</faultstring></soap:Fault></soap:Body></soap:Envelope>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(fault))
	}))
	defer srv.Close()

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	raw, err := client.EnviarComprobante(context.Background(), []byte("<x/>"))
	require.NoError(t, err, "status 500 con cuerpo no es un error de transporte")
	assert.Equal(t, fault, raw)
}

func TestPost_StatusNoExitosoSinCuerpoEsTransporte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	_, err := client.EnviarComprobante(context.Background(), []byte("<x/>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransporte))
}

// TestPost_FalloDeConexionEsTransporte: servidor caído = ErrTransporte; el
// orquestador decide si reintenta.
func TestPost_FalloDeConexionEsTransporte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // cerrado a propósito

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	_, err := client.EnviarComprobante(context.Background(), []byte("<x/>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransporte))
}

func TestPost_ContextoCanceladoEsTransporte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<respuesta/>"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := infrasri.NewSOAPClient(srv.URL, srv.URL, testLogger())
	_, err := client.ConsultarAutorizacion(ctx, "123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransporte))
}
