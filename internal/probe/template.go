package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beaconlb/beacon/internal/beaconerr"
)

const (
	portToken     = "{{PORT}}"
	outboundToken = "{{OUTBOUND}}"
)

// renderTemplate substitutes {{PORT}} and {{OUTBOUND}} into the
// operator-supplied template (spec §4.3 step 2, §9 "textual token
// replacement on a JSON template" — kept as plain string substitution
// rather than structural injection since the spec calls both acceptable
// and textual substitution is the cheaper, more portable of the two).
func renderTemplate(templatePath string, port int, outbound json.RawMessage) (string, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return "", beaconerr.Wrap(beaconerr.ConfigurationMissing, "read probe proxy template", err)
	}
	tpl := string(raw)
	if !strings.Contains(tpl, portToken) || !strings.Contains(tpl, outboundToken) {
		return "", beaconerr.New(beaconerr.ConfigurationMissing, fmt.Sprintf("template missing %s or %s token", portToken, outboundToken))
	}

	rendered := strings.ReplaceAll(tpl, portToken, strconv.Itoa(port))
	rendered = strings.ReplaceAll(rendered, outboundToken, string(outbound))
	return rendered, nil
}
