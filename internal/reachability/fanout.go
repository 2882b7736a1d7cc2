package reachability

import (
	"context"
	"fmt"

	"github.com/catherinevee/cloudlens/internal/netcalc"
)

// analyzeFanOut answers "what can this source reach": one branch per route
// rule of the source subnet's table plus one branch per sibling subnet in
// the same VCN. Gateway nodes are deduplicated across rules.
func (a *Analyzer) analyzeFanOut(ctx context.Context, idx *netIndex, req Request) *Result {
	w := newWalk()
	sourceID := w.addHop(HopSource, req.SourceIP, "", "", StatusAllow, "source")

	sourceSubnet := idx.findSubnetContaining(req.SourceIP, "")
	if sourceSubnet == nil {
		subnetID := w.addHop(HopSubnet, "Subnet", "network/subnet", "",
			StatusDeny, "no subnet contains the source IP")
		w.link(sourceID, subnetID, "")
		return w.result(VerdictBlocked, fmt.Sprintf("no subnet contains source IP %s", req.SourceIP))
	}
	subnetID := w.addHop(HopSubnet, subnetLabel(sourceSubnet), "network/subnet", sourceSubnet.OCID,
		StatusAllow, "source subnet")
	w.link(sourceID, subnetID, "")
	sourceVCN, _ := sourceSubnet.RawData["vcnId"].(string)

	total := 0
	reachable := 0

	// One branch per route rule.
	if routeTable, _ := idx.routeTableFor(sourceSubnet); routeTable != nil {
		for _, rule := range routeRules(routeTable) {
			if ctx.Err() != nil {
				return newWalk().result(VerdictUnknown, "analysis cancelled")
			}
			destination, _ := rule["destination"].(string)
			probe := representativeIP(destination)
			if probe == "" {
				// Malformed destinations never match; skip the branch.
				continue
			}
			total++

			egress := idx.evalSecurity(sourceSubnet, sourceVCN, directionEgress, probe, req.Protocol, req.Port)
			entityID, _ := rule["networkEntityId"].(string)
			gateway := idx.byOCID[entityID]

			if gateway == nil {
				w.addHopWithID("gw-"+entityID, HopGateway, "Gateway", "", entityID,
					StatusUnknown, "gateway not present in snapshot")
				w.link(subnetID, "gw-"+entityID, destination)
				continue
			}
			gwAllowed, gwDetail := gatewayAllowed(gateway)
			branchAllowed := egress.allowed && gwAllowed
			status := StatusAllow
			detail := gwDetail
			switch {
			case !egress.allowed:
				status = StatusDeny
				detail = "blocked by egress security"
			case !gwAllowed:
				status = StatusDeny
			}
			if branchAllowed {
				reachable++
			}
			hopID := w.addHopWithID("gw-"+gateway.OCID, HopGateway, gatewayLabel(gateway),
				gateway.ResourceType, gateway.OCID, status, detail)
			w.link(subnetID, hopID, destination)
		}
	}

	// One branch per sibling subnet in the same VCN.
	for _, sibling := range idx.subnets {
		if ctx.Err() != nil {
			return newWalk().result(VerdictUnknown, "analysis cancelled")
		}
		if sibling.OCID == sourceSubnet.OCID {
			continue
		}
		if siblingVCN, _ := sibling.RawData["vcnId"].(string); siblingVCN != sourceVCN {
			continue
		}
		cidr, _ := sibling.RawData["cidrBlock"].(string)
		probe := representativeIP(cidr)
		if probe == "" {
			continue
		}
		total++

		egress := idx.evalSecurity(sourceSubnet, sourceVCN, directionEgress, probe, req.Protocol, req.Port)
		ingress := idx.evalSecurity(sibling, sourceVCN, directionIngress, req.SourceIP, req.Protocol, req.Port)
		branchAllowed := egress.allowed && ingress.allowed
		status := StatusAllow
		detail := "reachable within the VCN"
		switch {
		case !egress.allowed:
			status = StatusDeny
			detail = "blocked by egress security"
		case !ingress.allowed:
			status = StatusDeny
			detail = "blocked by ingress security"
		}
		if branchAllowed {
			reachable++
		}
		hopID := w.addHopWithID("subnet-"+sibling.OCID, HopSubnet, subnetLabel(sibling),
			"network/subnet", sibling.OCID, status, detail)
		w.link(subnetID, hopID, "intra-VCN")
	}

	detail := fmt.Sprintf("%d of %d destinations reachable from %s", reachable, total, req.SourceIP)
	switch {
	case total == 0:
		return w.result(VerdictUnknown, "no route rules or sibling subnets to evaluate")
	case reachable == total:
		return w.result(VerdictReachable, detail)
	case reachable == 0:
		return w.result(VerdictBlocked, detail)
	default:
		return w.result(VerdictPartial, detail)
	}
}

// representativeIP picks a probe address for a CIDR: the network address,
// or the representative external address for 0.0.0.0/0.
func representativeIP(cidr string) string {
	parsed := netcalc.ParseCIDR(cidr)
	if parsed == nil {
		return ""
	}
	if parsed.Prefix == 0 {
		return internetProbeIP
	}
	return netcalc.IntToIP(parsed.Network)
}
