package reachability

import (
	"context"
	"fmt"

	"github.com/catherinevee/cloudlens/internal/models"
)

// analyzeFanIn answers "what can reach this destination": every subnet in
// the snapshot is checked for a route toward the destination and for egress
// admission; intra-VCN candidates additionally pass the destination
// subnet's ingress rules. Each subnet becomes a node linked to a single
// central destination.
func (a *Analyzer) analyzeFanIn(ctx context.Context, idx *netIndex, req Request) *Result {
	w := newWalk()
	internetDest := isInternetDestination(req.DestinationIP)
	effectiveDest := req.DestinationIP
	destLabel := req.DestinationIP
	if internetDest {
		effectiveDest = internetProbeIP
		destLabel = "Internet"
	}

	var destSubnet *models.Resource
	destVCN := ""
	if !internetDest {
		destSubnet = idx.findSubnetContaining(effectiveDest, "")
		if destSubnet != nil {
			destVCN, _ = destSubnet.RawData["vcnId"].(string)
		}
	}

	destID := w.addHop(HopDestination, destLabel, "", "", StatusAllow, "destination")

	total := 0
	reachable := 0
	for _, subnet := range idx.subnets {
		if ctx.Err() != nil {
			return newWalk().result(VerdictUnknown, "analysis cancelled")
		}
		if destSubnet != nil && subnet.OCID == destSubnet.OCID {
			continue
		}
		total++

		subnetVCN, _ := subnet.RawData["vcnId"].(string)
		intraVCN := destSubnet != nil && subnetVCN == destVCN

		// Route toward the destination: an explicit match, or the implicit
		// local route for intra-VCN traffic.
		routeOK := false
		routeDetail := ""
		if routeTable, routeTableRef := idx.routeTableFor(subnet); routeTable != nil {
			if matchRoute(routeTable, effectiveDest) != nil {
				routeOK = true
			} else if intraVCN {
				routeOK = true
			} else {
				routeDetail = "no route to destination"
			}
		} else if intraVCN {
			routeOK = true
		} else if routeTableRef != "" {
			routeDetail = "route table not present in snapshot"
		} else {
			routeDetail = "no route table associated with subnet"
		}

		cidr, _ := subnet.RawData["cidrBlock"].(string)
		probe := representativeIP(cidr)

		egressOK := false
		if routeOK {
			egress := idx.evalSecurity(subnet, subnetVCN, directionEgress, effectiveDest, req.Protocol, req.Port)
			egressOK = egress.allowed
		}

		ingressOK := true
		if routeOK && egressOK && intraVCN && probe != "" {
			ingress := idx.evalSecurity(destSubnet, destVCN, directionIngress, probe, req.Protocol, req.Port)
			ingressOK = ingress.allowed
		}

		allowed := routeOK && egressOK && ingressOK
		status := StatusAllow
		detail := "can reach the destination"
		switch {
		case !routeOK:
			status = StatusDeny
			detail = routeDetail
		case !egressOK:
			status = StatusDeny
			detail = "blocked by egress security"
		case !ingressOK:
			status = StatusDeny
			detail = "blocked by ingress security on the destination subnet"
		}
		if allowed {
			reachable++
		}

		hopID := w.addHopWithID("subnet-"+subnet.OCID, HopSubnet, subnetLabel(subnet),
			"network/subnet", subnet.OCID, status, detail)
		w.link(hopID, destID, "")
	}

	detail := fmt.Sprintf("%d of %d subnets can reach %s", reachable, total, destLabel)
	switch {
	case total == 0:
		return w.result(VerdictUnknown, "no subnets in the snapshot to evaluate")
	case reachable == total:
		return w.result(VerdictReachable, detail)
	case reachable == 0:
		return w.result(VerdictBlocked, detail)
	default:
		return w.result(VerdictPartial, detail)
	}
}
