package domain

import "errors"

// Errores de dominio (sin dependencias externas). El orquestador y los
// adaptadores los envuelven con fmt.Errorf("...: %w", err) para conservar
// la causa; el caller distingue la clase con errors.Is.
var (
	ErrNotFound = errors.New("recurso no encontrado")

	// ErrConstruccion falla local al construir el XML del comprobante
	// (agregado incompleto, totales inválidos). Nunca se envía al SRI.
	ErrConstruccion = errors.New("comprobante inválido para generación")

	// ErrFirma falla de firma digital (certificado, contraseña, llave).
	// Fatal para el intento: reintentar produciría el mismo resultado.
	ErrFirma = errors.New("firma digital fallida")

	// ErrTransporte falla de red/HTTP contra el WS del SRI. Reintentable por
	// el orquestador; tras un timeout ambiguo en recepción debe consultarse
	// la autorización por clave de acceso antes de reenviar.
	ErrTransporte = errors.New("error de transporte SOAP")

	// ErrFaultSRI el WS respondió con un SOAP Fault.
	ErrFaultSRI = errors.New("SOAP Fault del SRI")

	// ErrRespuestaMalformada la respuesta no tiene la forma esperada y
	// tampoco es un Fault. Se escala al operador, nunca se traga.
	ErrRespuestaMalformada = errors.New("respuesta del SRI malformada")

	// ErrTransicionInvalida operación no válida para el estado actual del
	// comprobante (error de uso, no condición transitoria).
	ErrTransicionInvalida = errors.New("transición de estado inválida")
)
