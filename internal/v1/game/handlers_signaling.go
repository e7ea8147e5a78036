package game

// Signaling relay: the server forwards opaque offer/answer/ICE blobs
// between peers in the same room and never inspects them.

func (r *Room) handleSignalReady(c Caller) error {
	peers := make([]string, 0, len(r.readyPeers))
	for _, pid := range r.readyPeers {
		if pid != c.PersistentID {
			peers = append(peers, string(pid))
		}
	}
	r.readyPeers[c.Conn.ID()] = c.PersistentID

	r.sendTo(c.PersistentID, EventWebRTCReadyPeers, ReadyPeersPayload{Peers: peers})
	for connID, pid := range r.readyPeers {
		if connID == c.Conn.ID() {
			continue
		}
		r.sendTo(pid, EventWebRTCPeerJoined, PeerJoinedPayload{
			PeerID: string(c.PersistentID),
		})
	}
	return nil
}

func (r *Room) handleSignalForward(c Caller, event Event, p SignalPayload) error {
	target := r.participant(PersistentID(p.To))
	if target == nil {
		return ErrPlayerNotFound
	}
	p.From = string(c.PersistentID)
	p.Code = string(r.Code)
	r.sendTo(target.PersistentID, event, p)
	return nil
}

func (r *Room) handleMediaState(c Caller, event Event, p MediaStatePayload) error {
	out := EventWebcamStateBroadcast
	if event == EventMicStateChange {
		out = EventMicrophoneStateBroadcast
	}
	r.broadcast(out, MediaStateBroadcastPayload{
		PersistentPlayerID: string(c.PersistentID),
		Enabled:            p.Enabled,
	})
	return nil
}
