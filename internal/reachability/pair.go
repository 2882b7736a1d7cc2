package reachability

import (
	"context"
	"fmt"

	"github.com/catherinevee/cloudlens/internal/models"
)

// pairRun carries the state of one pair-mode walk. It is owned by a single
// Analyze call and dropped at its end.
type pairRun struct {
	idx           *netIndex
	req           Request
	w             *walk
	visitedVCNs   map[string]bool
	effectiveDest string
	internetDest  bool
}

func (a *Analyzer) analyzePair(ctx context.Context, idx *netIndex, req Request) *Result {
	run := &pairRun{
		idx:           idx,
		req:           req,
		w:             newWalk(),
		visitedVCNs:   make(map[string]bool),
		effectiveDest: req.DestinationIP,
		internetDest:  isInternetDestination(req.DestinationIP),
	}
	if run.internetDest {
		// Route toward a representative external address.
		run.effectiveDest = internetProbeIP
	}
	return run.walkPair(ctx)
}

func (r *pairRun) walkPair(ctx context.Context) *Result {
	w := r.w
	sourceID := w.addHop(HopSource, r.req.SourceIP, "", "", StatusAllow, "source")

	sourceSubnet := r.idx.findSubnetContaining(r.req.SourceIP, "")
	if sourceSubnet == nil {
		return r.walkExternalSource(sourceID)
	}

	subnetID := w.addHop(HopSubnet, subnetLabel(sourceSubnet), "network/subnet", sourceSubnet.OCID,
		StatusAllow, "source subnet")
	w.link(sourceID, subnetID, "")
	sourceVCN, _ := sourceSubnet.RawData["vcnId"].(string)
	r.visitedVCNs[sourceVCN] = true

	var destSubnet *models.Resource
	intraVCN := false
	if !r.internetDest {
		destSubnet = r.idx.findSubnetContaining(r.effectiveDest, "")
		if destSubnet != nil {
			destVCN, _ := destSubnet.RawData["vcnId"].(string)
			intraVCN = destVCN == sourceVCN
		}
	}

	// Route table: explicit on the subnet, else the VCN default.
	routeTable, routeTableRef := r.idx.routeTableFor(sourceSubnet)
	if routeTable == nil {
		if routeTableRef != "" {
			w.addHop(HopRouteTable, "Route table", "network/route-table", routeTableRef,
				StatusUnknown, "route table not present in snapshot")
			return w.result(VerdictUnknown, fmt.Sprintf("route table %s is referenced but not in the snapshot", routeTableRef))
		}
		w.addHop(HopRouteTable, "Route table", "network/route-table", "",
			StatusDeny, "no route table associated with subnet")
		return w.result(VerdictBlocked, "source subnet has no route table")
	}

	matched := matchRoute(routeTable, r.effectiveDest)
	routeTableLabel := routeTable.DisplayName
	if routeTableLabel == "" {
		routeTableLabel = "Route table"
	}
	var routeHopID string
	switch {
	case matched != nil:
		destination, _ := matched["destination"].(string)
		routeHopID = w.addHop(HopRouteTable, routeTableLabel, "network/route-table", routeTable.OCID,
			StatusAllow, fmt.Sprintf("route %s matched", destination))
	case intraVCN:
		// Traffic inside one VCN is always routable.
		routeHopID = w.addHop(HopRouteTable, routeTableLabel, "network/route-table", routeTable.OCID,
			StatusAllow, "implicit local route")
	default:
		w.addHop(HopRouteTable, routeTableLabel, "network/route-table", routeTable.OCID,
			StatusDeny, "no route to destination")
		return w.result(VerdictBlocked, fmt.Sprintf("no route toward %s", r.req.DestinationIP))
	}
	w.link(subnetID, routeHopID, "")

	// Egress security on the source subnet against the destination side.
	egress := r.idx.evalSecurity(sourceSubnet, sourceVCN, directionEgress, r.effectiveDest, r.req.Protocol, r.req.Port)
	lastID, allowed := emitSecurityHops(w, routeHopID, sourceSubnet, directionEgress, egress)
	if !allowed {
		return w.result(VerdictBlocked,
			fmt.Sprintf("blocked by egress security on %s", subnetLabel(sourceSubnet)))
	}

	if intraVCN {
		return r.arriveAtSubnet(lastID, destSubnet)
	}

	if matched == nil {
		// Unreachable: a non-intra-VCN walk always carries a matched route
		// at this point.
		return w.result(VerdictUnknown, "route resolution failed")
	}

	entityID, _ := matched["networkEntityId"].(string)
	gateway := r.idx.byOCID[entityID]
	if gateway == nil {
		w.addHop(HopGateway, "Gateway", "", entityID, StatusUnknown, "gateway not present in snapshot")
		return w.result(VerdictUnknown, fmt.Sprintf("gateway %s is referenced by the route but not in the snapshot", entityID))
	}

	gwAllowed, gwDetail := gatewayAllowed(gateway)
	gwStatus := StatusAllow
	if !gwAllowed {
		gwStatus = StatusDeny
	}
	gatewayID := w.addHop(HopGateway, gatewayLabel(gateway), gateway.ResourceType, gateway.OCID, gwStatus, gwDetail)
	w.link(lastID, gatewayID, "")
	if !gwAllowed {
		return w.result(VerdictBlocked, fmt.Sprintf("blocked at %s: %s", gatewayLabel(gateway), gwDetail))
	}

	switch gateway.ResourceType {
	case "network/drg":
		return r.traverseDRG(gateway, sourceVCN, gatewayID)
	case "network/local-peering-gateway":
		return r.traverseLPG(gateway, gatewayID)
	case "network/service-gateway":
		netID := r.w.addHop(HopNetwork, "Oracle Services", "", "", StatusAllow, "Oracle Services Network")
		w.link(gatewayID, netID, "")
		return w.result(VerdictReachable, "traffic reaches the Oracle Services Network")
	default:
		netID := w.addHop(HopNetwork, "Internet", "", "", StatusAllow, "external network")
		w.link(gatewayID, netID, "")
		if !r.internetDest {
			destID := w.addHop(HopDestination, r.req.DestinationIP, "", "", StatusAllow, "external destination")
			w.link(netID, destID, "")
		}
		return w.result(VerdictReachable, "traffic allowed end-to-end")
	}
}

// walkExternalSource handles a source IP outside every subnet: when the
// destination resolves inside the snapshot the flow is treated as arriving
// from the internet and ingress security decides; otherwise the walk stops
// at the subnet lookup.
func (r *pairRun) walkExternalSource(sourceID string) *Result {
	w := r.w
	var destSubnet *models.Resource
	if !r.internetDest {
		destSubnet = r.idx.findSubnetContaining(r.effectiveDest, "")
	}
	if destSubnet == nil {
		subnetID := w.addHop(HopSubnet, "Subnet", "network/subnet", "",
			StatusDeny, "no subnet contains the source IP")
		w.link(sourceID, subnetID, "")
		return w.result(VerdictBlocked, fmt.Sprintf("no subnet contains source IP %s", r.req.SourceIP))
	}

	netID := w.addHop(HopNetwork, "Internet", "", "", StatusAllow, "external source")
	w.link(sourceID, netID, "")
	return r.arriveFrom(netID, destSubnet, r.req.SourceIP)
}

// arriveAtSubnet finishes an intra-VCN walk: ingress security on the
// destination subnet against the source IP, then the destination hop.
func (r *pairRun) arriveAtSubnet(fromID string, destSubnet *models.Resource) *Result {
	return r.arriveFrom(fromID, destSubnet, r.req.SourceIP)
}

// arriveFrom emits the destination subnet, its ingress evaluation against
// peerIP, and the terminal destination hop.
func (r *pairRun) arriveFrom(fromID string, destSubnet *models.Resource, peerIP string) *Result {
	w := r.w
	destVCN, _ := destSubnet.RawData["vcnId"].(string)
	subnetID := w.addHop(HopSubnet, subnetLabel(destSubnet), "network/subnet", destSubnet.OCID,
		StatusAllow, "destination subnet")
	w.link(fromID, subnetID, "")

	ingress := r.idx.evalSecurity(destSubnet, destVCN, directionIngress, peerIP, r.req.Protocol, r.req.Port)
	lastID, allowed := emitSecurityHops(w, subnetID, destSubnet, directionIngress, ingress)
	if !allowed {
		return w.result(VerdictBlocked,
			fmt.Sprintf("blocked by ingress security on %s", subnetLabel(destSubnet)))
	}

	destID := w.addHop(HopDestination, r.req.DestinationIP, "", "", StatusAllow, "destination")
	w.link(lastID, destID, "")
	return w.result(VerdictReachable, "traffic allowed end-to-end")
}

// traverseDRG follows a DRG into the attachment whose VCN differs from the
// source's, then continues the walk inside that VCN.
func (r *pairRun) traverseDRG(drg *models.Resource, sourceVCN, gatewayID string) *Result {
	for _, attachment := range r.idx.drgAttachments {
		drgID, _ := attachment.RawData["drgId"].(string)
		vcnID, _ := attachment.RawData["vcnId"].(string)
		if drgID != drg.OCID || vcnID == "" || vcnID == sourceVCN {
			continue
		}
		return r.continueInTargetVCN(vcnID, gatewayID)
	}
	return r.w.result(VerdictPartial, "DRG has no attachment to a remote VCN in the snapshot")
}

// traverseLPG follows the peerId to the peer LPG and continues in its VCN.
// Egress is not re-evaluated on the peer side; the walk is asymmetric by
// design of the routed path.
func (r *pairRun) traverseLPG(lpg *models.Resource, gatewayID string) *Result {
	w := r.w
	peerID, _ := lpg.RawData["peerId"].(string)
	peer := r.idx.byOCID[peerID]
	if peer == nil {
		w.addHop(HopGateway, "Peer LPG", "network/local-peering-gateway", peerID,
			StatusUnknown, "peer gateway not present in snapshot")
		return w.result(VerdictUnknown, fmt.Sprintf("peer gateway %s is not in the snapshot", peerID))
	}
	peerAllowed, peerDetail := gatewayAllowed(peer)
	peerStatus := StatusAllow
	if !peerAllowed {
		peerStatus = StatusDeny
	}
	peerHopID := w.addHop(HopGateway, gatewayLabel(peer), peer.ResourceType, peer.OCID, peerStatus, peerDetail)
	w.link(gatewayID, peerHopID, "")
	if !peerAllowed {
		return w.result(VerdictBlocked, fmt.Sprintf("blocked at %s: %s", gatewayLabel(peer), peerDetail))
	}
	peerVCN, _ := peer.RawData["vcnId"].(string)
	return r.continueInTargetVCN(peerVCN, peerHopID)
}

// continueInTargetVCN resumes the walk inside another VCN. The visited set
// bounds the recursion: re-entering a VCN yields PARTIAL.
func (r *pairRun) continueInTargetVCN(vcnOCID, fromID string) *Result {
	w := r.w
	if r.visitedVCNs[vcnOCID] {
		return w.result(VerdictPartial, "loop detected during cross-VCN traversal")
	}
	r.visitedVCNs[vcnOCID] = true

	destSubnet := r.idx.findSubnetContaining(r.effectiveDest, vcnOCID)
	if destSubnet == nil {
		return w.result(VerdictPartial,
			fmt.Sprintf("no subnet containing %s in the target VCN", r.req.DestinationIP))
	}
	return r.arriveFrom(fromID, destSubnet, r.req.SourceIP)
}

// emitSecurityHops renders one security evaluation as hops: the SL hop
// always, plus an NSG hop when an NSG admitted traffic the security lists
// denied. Returns the id to chain from and whether traffic is admitted.
func emitSecurityHops(w *walk, fromID string, subnet *models.Resource, direction string, verdict securityVerdict) (string, bool) {
	firstSL := ""
	if ids := stringSlice(subnet.RawData["securityListIds"]); len(ids) > 0 {
		firstSL = ids[0]
	}
	label := "Ingress security list"
	noMatch := "no matching ingress rule"
	if direction == directionEgress {
		label = "Egress security list"
		noMatch = "no matching egress rule"
	}

	switch {
	case verdict.allowed && !verdict.nsgSaved:
		slID := w.addHop(HopSecurityList, label, "network/security-list", firstSL, StatusAllow, verdict.slDetail)
		w.link(fromID, slID, "")
		return slID, true
	case verdict.allowed && verdict.nsgSaved:
		slID := w.addHop(HopSecurityList, label, "network/security-list", firstSL,
			StatusAllow, "SL denied, but NSG allowed")
		w.link(fromID, slID, "")
		nsgID := w.addHop(HopNSG, verdict.nsgLabel, "network/nsg", verdict.nsgOCID, StatusAllow, verdict.nsgDetail)
		w.link(slID, nsgID, "")
		return nsgID, true
	default:
		slID := w.addHop(HopSecurityList, label, "network/security-list", firstSL, StatusDeny, noMatch)
		w.link(fromID, slID, "")
		return slID, false
	}
}
