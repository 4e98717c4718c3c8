package sri

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// ResponseParser interpreta las respuestas SOAP de los WS del SRI. Toda la
// navegación es por nombre local, ignorando prefijos y URIs de namespace: el
// uso de namespaces del SRI varía entre ambientes y versiones, y aislar la
// búsqueda aquí limita el impacto de futuros cambios.
type ResponseParser struct{}

// NewResponseParser crea el parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// ParseRecepcion interpreta la respuesta de validarComprobante. La búsqueda
// se ancla en RespuestaRecepcionComprobante: un estado suelto en cualquier
// otra parte del envelope no cuenta como respuesta de recepción.
// Si el ancla no aparece: un SOAP Fault se reporta como ErrFaultSRI;
// cualquier otra forma, como ErrRespuestaMalformada.
func (p *ResponseParser) ParseRecepcion(xmlText string) (*RespuestaRecepcion, error) {
	root, err := parseDoc(xmlText)
	if err != nil {
		return nil, err
	}

	respuesta := findFirst(root, "RespuestaRecepcionComprobante")
	if respuesta == nil {
		if fault := faultString(root); fault != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrFaultSRI, fault)
		}
		return nil, fmt.Errorf("%w: recepción sin RespuestaRecepcionComprobante", domain.ErrRespuestaMalformada)
	}
	estado := findFirst(respuesta, "estado")
	if estado == nil {
		return nil, fmt.Errorf("%w: recepción sin nodo estado", domain.ErrRespuestaMalformada)
	}

	resp := &RespuestaRecepcion{Estado: strings.TrimSpace(estado.Text())}
	// Sólo DEVUELTA trae lista de mensajes.
	if resp.Estado == pkgsri.EstadoDevuelta {
		resp.Mensajes = extractMensajes(respuesta)
	}
	return resp, nil
}

// ParseAutorizacion interpreta la respuesta de autorizacionComprobante.
// La ausencia del nodo autorizacion sin Fault es EN PROCESO (el SRI aún no
// termina), no un error. Un Fault en esta etapa se materializa como estado
// ERROR con un mensaje sintético, nunca como excepción: el caller debe poder
// persistir el resultado sin try/catch de orquestación.
func (p *ResponseParser) ParseAutorizacion(xmlText string) (*RespuestaAutorizacion, error) {
	root, err := parseDoc(xmlText)
	if err != nil {
		return nil, err
	}

	aut := findFirst(root, "autorizacion")
	if aut == nil {
		if fault := faultString(root); fault != "" {
			return &RespuestaAutorizacion{
				Estado: pkgsri.EstadoErrorSRI,
				Mensajes: []pkgsri.Mensaje{{
					Mensaje: fault,
					Tipo:    "ERROR",
				}},
			}, nil
		}
		return &RespuestaAutorizacion{Estado: pkgsri.EstadoEnProceso}, nil
	}

	resp := &RespuestaAutorizacion{}
	if estado := findFirst(aut, "estado"); estado != nil {
		resp.Estado = strings.TrimSpace(estado.Text())
	}

	switch resp.Estado {
	case pkgsri.EstadoAutorizado:
		if num := findFirst(aut, "numeroAutorizacion"); num != nil {
			resp.NumeroAutorizacion = strings.TrimSpace(num.Text())
		}
		if fecha := findFirst(aut, "fechaAutorizacion"); fecha != nil {
			// Fecha no parseable se tolera: el campo queda sin fijar.
			if t, ok := parseFechaAutorizacion(strings.TrimSpace(fecha.Text())); ok {
				resp.FechaAutorizacion = &t
			}
		}
	case pkgsri.EstadoNoAutorizado:
		resp.Mensajes = extractMensajes(aut)
	}
	return resp, nil
}

// ── Utilitarios de navegación por nombre local ───────────────────────────────

func parseDoc(xmlText string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRespuestaMalformada, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: documento sin raíz", domain.ErrRespuestaMalformada)
	}
	return root, nil
}

// findFirst búsqueda recursiva en profundidad del primer descendiente con el
// nombre local dado (etree expone el prefijo en Space y el local en Tag).
func findFirst(el *etree.Element, local string) *etree.Element {
	if el.Tag == local {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findFirst(child, local); found != nil {
			return found
		}
	}
	return nil
}

// findAll recolecta todos los descendientes con el nombre local dado, en
// orden de documento.
func findAll(el *etree.Element, local string, out []*etree.Element) []*etree.Element {
	if el.Tag == local {
		out = append(out, el)
	}
	for _, child := range el.ChildElements() {
		out = findAll(child, local, out)
	}
	return out
}

// faultString devuelve el faultstring de un SOAP Fault, o "" si no hay Fault.
func faultString(root *etree.Element) string {
	fault := findFirst(root, "Fault")
	if fault == nil {
		return ""
	}
	if fs := findFirst(fault, "faultstring"); fs != nil {
		return strings.TrimSpace(fs.Text())
	}
	return "SOAP Fault sin faultstring"
}

// extractMensajes recorre todos los nodos mensaje bajo el elemento dado y
// extrae sus subcampos por nombre local, con cadena vacía por defecto.
func extractMensajes(el *etree.Element) []pkgsri.Mensaje {
	var mensajes []pkgsri.Mensaje
	for _, m := range findAll(el, "mensaje", nil) {
		// El subcampo <mensaje> dentro de otro <mensaje> es texto, no una
		// entrada nueva.
		if parent := m.Parent(); parent != nil && parent.Tag == "mensaje" {
			continue
		}
		mensajes = append(mensajes, pkgsri.Mensaje{
			Identificador:        childText(m, "identificador"),
			Mensaje:              childText(m, "mensaje"),
			InformacionAdicional: childText(m, "informacionAdicional"),
			Tipo:                 childText(m, "tipo"),
		})
	}
	return mensajes
}

func childText(el *etree.Element, local string) string {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

// Formatos de fechaAutorizacion observados en los ambientes del SRI.
var layoutsFecha = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
}

func parseFechaAutorizacion(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layoutsFecha {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
