package reachability

import (
	"fmt"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/netcalc"
)

// Protocol numbers as they appear on the wire format.
const (
	protocolAll  = "all"
	protocolTCP  = "6"
	protocolUDP  = "17"
	protocolICMP = "1"
)

// directionIngress / directionEgress select which CIDR side of a rule faces
// the peer.
const (
	directionIngress = "ingress"
	directionEgress  = "egress"
)

// matchSecurityRules scans a rule list and returns whether any rule admits
// the flow, plus a detail string for the first matching rule. A rule
// matches when its peer-side CIDR contains peerIP (or is omitted, meaning
// any), and its protocol is "all" or equals the requested protocol; for
// TCP/UDP with a port requested, a present destination port range must
// contain the port. Source-port constraints are ignored. Malformed rules
// never match.
func matchSecurityRules(rules []interface{}, direction, peerIP, protocol string, port int) (bool, string) {
	for _, ruleValue := range rules {
		rule, ok := ruleValue.(map[string]interface{})
		if !ok {
			continue
		}
		cidrKey := "source"
		if direction == directionEgress {
			cidrKey = "destination"
		}
		cidr, _ := rule[cidrKey].(string)
		if cidr != "" && !netcalc.IPInCIDR(peerIP, cidr) {
			continue
		}
		ruleProtocol, _ := rule["protocol"].(string)
		if !protocolMatches(ruleProtocol, protocol) {
			continue
		}
		if !portMatches(rule, ruleProtocol, protocol, port) {
			continue
		}
		if cidr == "" {
			cidr = "any"
		}
		side := "src"
		if direction == directionEgress {
			side = "dest"
		}
		return true, fmt.Sprintf("proto=%s, %s=%s", displayProtocol(ruleProtocol), side, cidr)
	}
	return false, ""
}

func protocolMatches(ruleProtocol, requested string) bool {
	if ruleProtocol == protocolAll || ruleProtocol == "" {
		return true
	}
	if requested == "" {
		return true
	}
	return ruleProtocol == requested
}

// portMatches checks the destination port range for TCP/UDP flows. A rule
// without a range admits every port.
func portMatches(rule map[string]interface{}, ruleProtocol, requestedProtocol string, port int) bool {
	if port <= 0 {
		return true
	}
	effective := requestedProtocol
	if effective == "" {
		effective = ruleProtocol
	}
	var optionsKey string
	switch effective {
	case protocolTCP:
		optionsKey = "tcpOptions"
	case protocolUDP:
		optionsKey = "udpOptions"
	default:
		return true
	}
	options, ok := rule[optionsKey].(map[string]interface{})
	if !ok {
		return true
	}
	portRange, ok := options["destinationPortRange"].(map[string]interface{})
	if !ok {
		return true
	}
	min, minOK := numberValue(portRange["min"])
	max, maxOK := numberValue(portRange["max"])
	if !minOK || !maxOK {
		return true
	}
	return port >= min && port <= max
}

func numberValue(value interface{}) (int, bool) {
	switch typed := value.(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	}
	return 0, false
}

func displayProtocol(protocol string) string {
	switch protocol {
	case protocolAll, "":
		return "all"
	case protocolTCP:
		return "TCP"
	case protocolUDP:
		return "UDP"
	case protocolICMP:
		return "ICMP"
	default:
		return protocol
	}
}

// securityVerdict is the combined outcome of evaluating the subnet's
// security lists and the VCN's NSGs for one direction. Traffic is admitted
// when either side admits it.
type securityVerdict struct {
	allowed   bool
	slDetail  string
	nsgDetail string
	// nsgSaved is set when the security lists denied but an NSG allowed;
	// the SL hop then carries the "SL denied, but NSG allowed" detail and
	// an NSG hop is emitted.
	nsgSaved bool
	nsgOCID  string
	nsgLabel string
}

// evalSecurity evaluates security lists attached to the subnet and NSGs of
// the VCN for the given direction and peer.
func (idx *netIndex) evalSecurity(subnet *models.Resource, vcnOCID, direction, peerIP, protocol string, port int) securityVerdict {
	slAllowed := false
	slDetail := ""
	for _, securityListID := range stringSlice(subnet.RawData["securityListIds"]) {
		securityList := idx.byOCID[securityListID]
		if securityList == nil {
			continue
		}
		rulesKey := "ingressSecurityRules"
		if direction == directionEgress {
			rulesKey = "egressSecurityRules"
		}
		rules, _ := securityList.RawData[rulesKey].([]interface{})
		if matched, detail := matchSecurityRules(rules, direction, peerIP, protocol, port); matched {
			slAllowed = true
			slDetail = detail
			break
		}
	}

	nsgAllowed := false
	nsgDetail := ""
	nsgOCID := ""
	nsgLabel := ""
	for _, nsg := range idx.nsgs {
		if vcnValue, _ := nsg.RawData["vcnId"].(string); vcnValue != vcnOCID {
			continue
		}
		rules := nsgRulesForDirection(nsg, direction)
		if matched, detail := matchSecurityRules(rules, direction, peerIP, protocol, port); matched {
			nsgAllowed = true
			nsgDetail = detail
			nsgOCID = nsg.OCID
			nsgLabel = nsg.DisplayName
			if nsgLabel == "" {
				nsgLabel = "NSG"
			}
			break
		}
	}

	verdict := securityVerdict{
		allowed:   slAllowed || nsgAllowed,
		slDetail:  slDetail,
		nsgDetail: nsgDetail,
		nsgOCID:   nsgOCID,
		nsgLabel:  nsgLabel,
	}
	if !slAllowed && nsgAllowed {
		verdict.nsgSaved = true
	}
	return verdict
}

// nsgRulesForDirection filters an NSG's rule list to one direction. NSG
// rules carry an explicit "direction" discriminator.
func nsgRulesForDirection(nsg *models.Resource, direction string) []interface{} {
	rules, _ := nsg.RawData["rules"].([]interface{})
	want := "INGRESS"
	if direction == directionEgress {
		want = "EGRESS"
	}
	out := make([]interface{}, 0, len(rules))
	for _, ruleValue := range rules {
		rule, ok := ruleValue.(map[string]interface{})
		if !ok {
			continue
		}
		if ruleDirection, _ := rule["direction"].(string); ruleDirection == want {
			out = append(out, ruleValue)
		}
	}
	return out
}

// gatewayAllowed evaluates the per-type admissibility of a gateway.
func gatewayAllowed(gateway *models.Resource) (bool, string) {
	raw := gateway.RawData
	switch gateway.ResourceType {
	case "network/internet-gateway":
		if enabled, ok := raw["isEnabled"].(bool); ok && !enabled {
			return false, "internet gateway is disabled"
		}
		return true, "internet gateway enabled"
	case "network/nat-gateway":
		if blocked, ok := raw["blockTraffic"].(bool); ok && blocked {
			return false, "NAT gateway blocks traffic"
		}
		return true, "NAT gateway passing traffic"
	case "network/service-gateway":
		if blocked, ok := raw["blockTraffic"].(bool); ok && blocked {
			return false, "service gateway blocks traffic"
		}
		return true, "service gateway passing traffic"
	case "network/drg":
		return true, "dynamic routing gateway"
	case "network/local-peering-gateway":
		if status, _ := raw["peeringStatus"].(string); status == "REVOKED" {
			return false, "peering revoked"
		}
		return true, "local peering established"
	}
	return true, ""
}

func stringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
