package main

import (
	"context"
	"encoding/json"

	"github.com/consultd/consultd/internal/configsvc"
	"github.com/consultd/consultd/internal/conversation"
	"github.com/consultd/consultd/internal/eventhub"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/orchestrator"
)

// registerOps wires the hub connection's request/response operations
// (spec.md §4.C/§9): consult/continue/end share the orchestrator with the
// REST boundary's one-shot /consult, and config/conversation CRUD share
// configsvc/conversation directly, so a websocket client and a REST
// client see identical state.
func registerOps(ws *eventhub.Server, orch *orchestrator.Orchestrator, convSvc *conversation.Service, cfgSvc *configsvc.Service) {
	ws.RegisterOp("consult", opConsult(orch))
	ws.RegisterOp("continue", opContinue(orch))
	ws.RegisterOp("end", opEnd(orch))

	ws.RegisterOp("config.get", opConfigGet(cfgSvc))
	ws.RegisterOp("config.update", opConfigUpdate(cfgSvc))

	ws.RegisterOp("conversation.list", opConversationList(convSvc))
	ws.RegisterOp("conversation.get", opConversationGet(convSvc))
	ws.RegisterOp("conversation.delete", opConversationDelete(convSvc))
	ws.RegisterOp("conversation.deleteArchived", opConversationDeleteArchived(convSvc))
}

func opConsult(orch *orchestrator.Orchestrator) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in orchestrator.ConsultInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		return orch.Consult(context.Background(), in)
	}
}

func opContinue(orch *orchestrator.Orchestrator) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in orchestrator.ContinueInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		return orch.Continue(context.Background(), in)
	}
}

type conversationIDRequest struct {
	ConversationID string `json:"conversationId"`
}

func opEnd(orch *orchestrator.Orchestrator) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in conversationIDRequest
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		return orch.End(context.Background(), in.ConversationID)
	}
}

func opConfigGet(cfgSvc *configsvc.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		cfg, err := cfgSvc.Get(context.Background())
		if err != nil {
			return nil, err
		}
		return configsvc.Masked(cfg), nil
	}
}

func opConfigUpdate(cfgSvc *configsvc.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var patch configsvc.Patch
		if err := json.Unmarshal(data, &patch); err != nil {
			return nil, err
		}
		cfg, err := cfgSvc.Update(context.Background(), patch)
		if err != nil {
			return nil, err
		}
		return configsvc.Masked(cfg), nil
	}
}

type conversationListRequest struct {
	Status model.ConversationStatus `json:"status"`
}

func opConversationList(convSvc *conversation.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in conversationListRequest
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		if in.Status == model.ConversationArchived {
			return convSvc.ListArchived(context.Background())
		}
		return convSvc.ListActive(context.Background())
	}
}

func opConversationGet(convSvc *conversation.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		return convSvc.Get(context.Background(), in.ID)
	}
}

func opConversationDelete(convSvc *conversation.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		var in struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		if err := convSvc.Delete(context.Background(), in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	}
}

func opConversationDeleteArchived(convSvc *conversation.Service) eventhub.OpHandler {
	return func(data json.RawMessage) (interface{}, error) {
		n, err := convSvc.DeleteAllArchived(context.Background())
		if err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": n}, nil
	}
}
