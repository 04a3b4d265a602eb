package main

import (
	"context"
	"errors"
	"time"

	"revisiond/internal/engine"
	"revisiond/internal/ipc"
	"revisiond/internal/store"
)

// handler dispatches IPC requests to the engine.
type handler struct {
	eng     *engine.Engine
	version string
}

func newHandler(eng *engine.Engine, version string) *handler {
	return &handler{eng: eng, version: version}
}

func (h *handler) HandleMessage(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	id := msg.Header.RequestID

	switch msg.Header.Type {
	case ipc.MsgStatus:
		return h.handleStatus(id)

	case ipc.MsgAddTarget:
		var req ipc.AddTargetRequest
		if err := ipc.Decode(msg.Payload, &req); err != nil {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "invalid add request"), nil
		}
		return ack(ipc.MsgAddTargetResp, id, h.eng.AddTarget(req.Path, req.RevisionDir))

	case ipc.MsgRemoveTarget:
		var req ipc.RemoveTargetRequest
		if err := ipc.Decode(msg.Payload, &req); err != nil {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "invalid remove request"), nil
		}
		err := h.eng.RemoveTarget(req.Path)
		if errors.Is(err, store.ErrNotFound) {
			return ipc.NewErrorMessage(id, ipc.ErrNotFound, "target not found: "+req.Path), nil
		}
		return ack(ipc.MsgRemoveTargetResp, id, err)

	case ipc.MsgListTargets:
		return h.handleListTargets(id)

	case ipc.MsgImportTargets:
		var req ipc.ImportTargetsRequest
		if err := ipc.Decode(msg.Payload, &req); err != nil {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "invalid import request"), nil
		}
		applied, skipped, err := h.eng.ImportTargets(req.Records)
		resp := &ipc.ImportTargetsResponse{Applied: applied, Skipped: skipped}
		if err != nil {
			resp.Error = err.Error()
		}
		return ipc.NewResponse(ipc.MsgImportTargetsResp, id, resp)

	case ipc.MsgExportTargets:
		return ipc.NewResponse(ipc.MsgExportTargetsResp, id, &ipc.ExportTargetsResponse{
			Records: h.eng.ExportTargets(),
		})

	case ipc.MsgGetHistory:
		var req ipc.GetHistoryRequest
		if err := ipc.Decode(msg.Payload, &req); err != nil {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "invalid history request"), nil
		}
		return h.handleGetHistory(id, &req)

	default:
		return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "unknown message type"), nil
	}
}

func (h *handler) handleStatus(id uint32) (*ipc.Message, error) {
	st := h.eng.Status()
	return ipc.NewResponse(ipc.MsgStatusResp, id, &ipc.StatusResponse{
		Version:    h.version,
		StartedAt:  st.StartedAt,
		Uptime:     time.Since(st.StartedAt),
		Targets:    st.Targets,
		Watches:    st.Watches,
		Pending:    st.Pending,
		Revisions:  st.Revisions,
		LastErrors: st.LastErrors,
	})
}

func (h *handler) handleListTargets(id uint32) (*ipc.Message, error) {
	targets := h.eng.Targets()
	infos := make([]ipc.TargetInfo, 0, len(targets))
	for _, t := range targets {
		info := ipc.TargetInfo{Path: t.Path, RevisionDir: t.RevisionDir}
		if t.LastFingerprint != nil {
			info.LastFingerprint = t.LastFingerprint.String()
		}
		infos = append(infos, info)
	}
	return ipc.NewResponse(ipc.MsgListTargetsResp, id, &ipc.ListTargetsResponse{Targets: infos})
}

func (h *handler) handleGetHistory(id uint32, req *ipc.GetHistoryRequest) (*ipc.Message, error) {
	entries, err := h.eng.History(req.Path, req.Limit)
	if err != nil {
		if errors.Is(err, engine.ErrJournalDisabled) {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, err.Error()), nil
		}
		return ipc.NewErrorMessage(id, ipc.ErrInternalError, err.Error()), nil
	}

	revisions := make([]ipc.RevisionInfo, 0, len(entries))
	for _, e := range entries {
		revisions = append(revisions, ipc.RevisionInfo{
			StoredName:  e.StoredName,
			Fingerprint: e.Fingerprint.String(),
			Size:        e.Size,
			CreatedAt:   e.CreatedAt,
		})
	}
	return ipc.NewResponse(ipc.MsgGetHistoryResp, id, &ipc.GetHistoryResponse{
		Path:      req.Path,
		Revisions: revisions,
	})
}

func ack(respType ipc.MessageType, id uint32, err error) (*ipc.Message, error) {
	resp := &ipc.AckResponse{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	return ipc.NewResponse(respType, id, resp)
}
