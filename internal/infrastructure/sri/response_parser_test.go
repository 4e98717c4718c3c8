package sri_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
)

// ──────────────────────────────────────────────────────────────────────────────
// Parseo de respuestas SOAP de los WS del SRI. La navegación es por nombre
// local: los prefijos de namespace varían entre ambientes y no deben importar.
// ──────────────────────────────────────────────────────────────────────────────

const respuestaRecibida = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns2:validarComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.recepcion">
      <RespuestaRecepcionComprobante>
        <estado>RECIBIDA</estado>
        <comprobantes/>
      </RespuestaRecepcionComprobante>
    </ns2:validarComprobanteResponse>
  </soap:Body>
</soap:Envelope>`

const respuestaDevuelta = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns2:validarComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.recepcion">
      <RespuestaRecepcionComprobante>
        <estado>DEVUELTA</estado>
        <comprobantes>
          <comprobante>
            <claveAcceso>1111111111111111111111111111111111111111111111111</claveAcceso>
            <mensajes>
              <mensaje>
                <identificador>35</identificador>
                <mensaje>ARCHIVO NO CUMPLE ESTRUCTURA XML</mensaje>
                <informacionAdicional>detalle interno</informacionAdicional>
                <tipo>ERROR</tipo>
              </mensaje>
              <mensaje>
                <identificador>39</identificador>
                <mensaje>FIRMA INVALIDA</mensaje>
                <tipo>ERROR</tipo>
              </mensaje>
            </mensajes>
          </comprobante>
        </comprobantes>
      </RespuestaRecepcionComprobante>
    </ns2:validarComprobanteResponse>
  </soap:Body>
</soap:Envelope>`

const respuestaFault = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>Error interno del servidor</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func TestParseRecepcion_Recibida(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseRecepcion(respuestaRecibida)
	require.NoError(t, err)
	assert.Equal(t, "RECIBIDA", resp.Estado)
	assert.True(t, resp.Recibida())
	assert.Empty(t, resp.Mensajes)
}

func TestParseRecepcion_DevueltaConMensajes(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseRecepcion(respuestaDevuelta)
	require.NoError(t, err)
	assert.Equal(t, "DEVUELTA", resp.Estado)
	assert.False(t, resp.Recibida())

	require.Len(t, resp.Mensajes, 2, "los mensajes se preservan todos, en orden de documento")
	assert.Equal(t, "35", resp.Mensajes[0].Identificador)
	assert.Equal(t, "ARCHIVO NO CUMPLE ESTRUCTURA XML", resp.Mensajes[0].Mensaje)
	assert.Equal(t, "detalle interno", resp.Mensajes[0].InformacionAdicional)
	assert.Equal(t, "ERROR", resp.Mensajes[0].Tipo)
	assert.Equal(t, "39", resp.Mensajes[1].Identificador)
	assert.Equal(t, "", resp.Mensajes[1].InformacionAdicional,
		"subcampo ausente queda como cadena vacía")
}

func TestParseRecepcion_FaultEsError(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseRecepcion(respuestaFault)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFaultSRI))
	assert.Contains(t, err.Error(), "Error interno del servidor")
}

func TestParseRecepcion_SinEstadoEsMalformada(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseRecepcion(`<respuesta><otra/></respuesta>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRespuestaMalformada))
}

// TestParseRecepcion_EstadoFueraDeLaRespuestaEsMalformada: un nodo estado
// suelto en el envelope no cuenta; sólo vale el que cuelga de
// RespuestaRecepcionComprobante.
func TestParseRecepcion_EstadoFueraDeLaRespuestaEsMalformada(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseRecepcion(`<respuesta><estado>RECIBIDA</estado></respuesta>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRespuestaMalformada))
}

// TestParseRecepcion_RespuestaSinEstadoEsMalformada: el ancla presente pero
// sin estado tampoco es interpretable.
func TestParseRecepcion_RespuestaSinEstadoEsMalformada(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseRecepcion(
		`<RespuestaRecepcionComprobante><comprobantes/></RespuestaRecepcionComprobante>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRespuestaMalformada))
}

func TestParseRecepcion_XMLInvalido(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseRecepcion("esto no es XML <<<")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRespuestaMalformada))
}

// ── Autorización ─────────────────────────────────────────────────────────────

const respuestaAutorizado = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns2:autorizacionComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.autorizacion">
      <RespuestaAutorizacionComprobante>
        <claveAccesoConsultada>1111111111111111111111111111111111111111111111111</claveAccesoConsultada>
        <numeroComprobantes>1</numeroComprobantes>
        <autorizaciones>
          <autorizacion>
            <estado>AUTORIZADO</estado>
            <numeroAutorizacion>1508202601179001234500110010020000001231234567811</numeroAutorizacion>
            <fechaAutorizacion>2026-08-15T14:30:00-05:00</fechaAutorizacion>
            <ambiente>PRUEBAS</ambiente>
            <comprobante>&lt;factura&gt;...&lt;/factura&gt;</comprobante>
          </autorizacion>
        </autorizaciones>
      </RespuestaAutorizacionComprobante>
    </ns2:autorizacionComprobanteResponse>
  </soap:Body>
</soap:Envelope>`

const respuestaNoAutorizado = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns2:autorizacionComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.autorizacion">
      <RespuestaAutorizacionComprobante>
        <autorizaciones>
          <autorizacion>
            <estado>NO AUTORIZADO</estado>
            <mensajes>
              <mensaje>
                <identificador>60</identificador>
                <mensaje>CLAVE ACCESO EN PROCESAMIENTO</mensaje>
                <tipo>ERROR</tipo>
              </mensaje>
            </mensajes>
          </autorizacion>
        </autorizaciones>
      </RespuestaAutorizacionComprobante>
    </ns2:autorizacionComprobanteResponse>
  </soap:Body>
</soap:Envelope>`

const respuestaSinAutorizacion = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns2:autorizacionComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.autorizacion">
      <RespuestaAutorizacionComprobante>
        <claveAccesoConsultada>1111111111111111111111111111111111111111111111111</claveAccesoConsultada>
        <numeroComprobantes>0</numeroComprobantes>
        <autorizaciones/>
      </RespuestaAutorizacionComprobante>
    </ns2:autorizacionComprobanteResponse>
  </soap:Body>
</soap:Envelope>`

func TestParseAutorizacion_Autorizado(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseAutorizacion(respuestaAutorizado)
	require.NoError(t, err)
	assert.Equal(t, "AUTORIZADO", resp.Estado)
	assert.Equal(t, "1508202601179001234500110010020000001231234567811", resp.NumeroAutorizacion)

	require.NotNil(t, resp.FechaAutorizacion)
	esperada := time.Date(2026, 8, 15, 14, 30, 0, 0, time.FixedZone("-05", -5*60*60))
	assert.True(t, resp.FechaAutorizacion.Equal(esperada))
}

// TestParseAutorizacion_FechaNoParseableSeTolera: un timestamp en formato
// desconocido no degrada la autorización; el campo queda sin fijar.
func TestParseAutorizacion_FechaNoParseableSeTolera(t *testing.T) {
	parser := infrasri.NewResponseParser()
	xml := `<respuesta><autorizacion><estado>AUTORIZADO</estado>` +
		`<numeroAutorizacion>999</numeroAutorizacion>` +
		`<fechaAutorizacion>mañana a las ocho</fechaAutorizacion></autorizacion></respuesta>`

	resp, err := parser.ParseAutorizacion(xml)
	require.NoError(t, err)
	assert.Equal(t, "AUTORIZADO", resp.Estado)
	assert.Equal(t, "999", resp.NumeroAutorizacion)
	assert.Nil(t, resp.FechaAutorizacion)
}

func TestParseAutorizacion_NoAutorizadoConMensajes(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseAutorizacion(respuestaNoAutorizado)
	require.NoError(t, err)
	assert.Equal(t, "NO AUTORIZADO", resp.Estado)
	require.Len(t, resp.Mensajes, 1)
	assert.Equal(t, "60", resp.Mensajes[0].Identificador)
	assert.Equal(t, "CLAVE ACCESO EN PROCESAMIENTO", resp.Mensajes[0].Mensaje)
}

// TestParseAutorizacion_SinAutorizacionEsEnProceso: la ausencia del nodo
// autorizacion no es un error, es EN PROCESO (el SRI aún no decide).
func TestParseAutorizacion_SinAutorizacionEsEnProceso(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseAutorizacion(respuestaSinAutorizacion)
	require.NoError(t, err)
	assert.Equal(t, "EN PROCESO", resp.Estado)
	assert.Empty(t, resp.NumeroAutorizacion)
	assert.Empty(t, resp.Mensajes)
}

// TestParseAutorizacion_FaultEsEstadoError: un Fault en autorización se
// materializa como estado ERROR con mensaje sintético, nunca como error de Go:
// el caller persiste el resultado y el comprobante queda reintentable.
func TestParseAutorizacion_FaultEsEstadoError(t *testing.T) {
	parser := infrasri.NewResponseParser()

	resp, err := parser.ParseAutorizacion(respuestaFault)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", resp.Estado)
	require.Len(t, resp.Mensajes, 1)
	assert.Equal(t, "Error interno del servidor", resp.Mensajes[0].Mensaje)
	assert.Equal(t, "ERROR", resp.Mensajes[0].Tipo)
}

func TestParseAutorizacion_XMLInvalido(t *testing.T) {
	parser := infrasri.NewResponseParser()

	_, err := parser.ParseAutorizacion("<<<")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRespuestaMalformada))
}
