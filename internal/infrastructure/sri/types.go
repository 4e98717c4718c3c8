// Package sri implementa la generación de XML, transporte SOAP y parseo de
// respuestas para comprobantes electrónicos del SRI (Ecuador), esquema offline.
package sri

import (
	"time"

	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// Emisor identidad tributaria del emisor (infoTributaria). Se inyecta por
// configuración en la construcción de los servicios; nada de constantes
// globales, para permitir fixtures con emisores alternos.
type Emisor struct {
	RUC                  string
	RazonSocial          string
	NombreComercial      string
	DirMatriz            string
	DirEstablecimiento   string
	Estab                string
	PtoEmi               string
	ObligadoContabilidad bool
}

// RespuestaRecepcion resultado del WS de recepción (validarComprobante).
type RespuestaRecepcion struct {
	Estado   string // RECIBIDA | DEVUELTA
	Mensajes []pkgsri.Mensaje
}

// Recibida indica si el SRI aceptó el comprobante en recepción.
func (r *RespuestaRecepcion) Recibida() bool {
	return r.Estado == pkgsri.EstadoRecibida
}

// RespuestaAutorizacion resultado del WS de autorización
// (autorizacionComprobante). FechaAutorizacion puede ser nil aun con estado
// AUTORIZADO: un timestamp no parseable se tolera y el campo queda sin fijar.
type RespuestaAutorizacion struct {
	Estado             string // AUTORIZADO | NO AUTORIZADO | EN PROCESO | ERROR
	NumeroAutorizacion string
	FechaAutorizacion  *time.Time
	Mensajes           []pkgsri.Mensaje
}
