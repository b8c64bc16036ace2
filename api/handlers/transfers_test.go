package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/warmtransfer/api"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/transfer"
	"github.com/BaSui01/warmtransfer/types"
)

func (e *testEnv) initiate(t *testing.T, req api.InitiateTransferRequest) api.InitiateTransferResponse {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/transfers", req)
	require.Equal(t, http.StatusCreated, code, "%+v", resp.Error)
	return decodeData[api.InitiateTransferResponse](t, resp)
}

func TestTransferHandler_InitiateInfersIdentities(t *testing.T) {
	env := newTestEnv(t)
	env.seedCall(t)

	res := env.initiate(t, api.InitiateTransferRequest{RoomID: "room_1", TargetAgentID: "b1", Context: "billing dispute"})
	assert.Equal(t, transfer.StatusPending, res.Status)
	assert.NotEmpty(t, res.TokenAgentA)
	assert.NotEmpty(t, res.TokenAgentB)

	tr, ok := env.engine.GetStatus(context.Background(), res.TransferID)
	require.True(t, ok)
	assert.Equal(t, transfer.Participants{Caller: "c1", AgentA: "a1", AgentB: "b1"}, tr.Participants)
	assert.Equal(t, "billing dispute", tr.Context)
}

func TestInferIdentities(t *testing.T) {
	base := time.Now()
	participant := func(id string, role room.Role, offset time.Duration) *room.ParticipantInfo {
		return &room.ParticipantInfo{Identity: id, Role: role, JoinedAt: base.Add(offset)}
	}

	tests := []struct {
		name           string
		participants   []*room.ParticipantInfo
		caller, agentA string
		wantCaller     string
		wantAgentA     string
		wantErr        bool
	}{
		{
			name:         "roles",
			participants: []*room.ParticipantInfo{participant("a1", room.RoleAgentA, 0), participant("c1", room.RoleCaller, time.Second)},
			wantCaller:   "c1",
			wantAgentA:   "a1",
		},
		{
			name:         "join order without roles",
			participants: []*room.ParticipantInfo{participant("x2", room.RoleAIAgent, time.Second), participant("x1", room.RoleAIAgent, 0)},
			wantCaller:   "x1",
			wantAgentA:   "x2",
		},
		{
			name:         "explicit caller",
			participants: []*room.ParticipantInfo{participant("c1", room.RoleCaller, 0), participant("a1", room.RoleAgentA, time.Second)},
			caller:       "a1",
			wantCaller:   "a1",
			wantAgentA:   "c1",
		},
		{
			name:         "target never inferred",
			participants: []*room.ParticipantInfo{participant("b1", room.RoleAgentB, 0), participant("c1", room.RoleCaller, time.Second)},
			wantErr:      true,
		},
		{
			name:    "empty room",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &room.Room{Participants: map[string]*room.ParticipantInfo{}}
			for _, p := range tt.participants {
				r.Participants[p.Identity] = p
			}
			caller, agentA, err := inferIdentities(r, tt.caller, tt.agentA, "b1")
			if tt.wantErr {
				assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCaller, caller)
			assert.Equal(t, tt.wantAgentA, agentA)
		})
	}
}

func TestTransferHandler_InitiateErrors(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodPost, "/api/transfers", api.InitiateTransferRequest{RoomID: "room_1", TargetAgentID: "b1"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(types.ErrNotFound), resp.Error.Code)

	code, _ = env.do(t, http.MethodPost, "/api/transfers", api.InitiateTransferRequest{RoomID: "room_1"})
	assert.Equal(t, http.StatusBadRequest, code)

	env.seedCall(t)
	code, _ = env.do(t, http.MethodPost, "/api/transfers", api.InitiateTransferRequest{
		RoomID:        "room_1",
		TargetAgentID: "a1",
	})
	assert.Equal(t, http.StatusBadRequest, code, "target equal to agent_a")
}

func TestTransferHandler_GetHidesAgentBToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedCall(t)
	res := env.initiate(t, api.InitiateTransferRequest{RoomID: "room_1", TargetAgentID: "b1"})

	code, resp := env.do(t, http.MethodGet, "/api/transfers/"+res.TransferID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(resp.Data), res.TokenAgentB)
	assert.Equal(t, res.TransferID, decodeData[transfer.Transfer](t, resp).ID)

	code, resp = env.do(t, http.MethodGet, "/api/transfers/"+res.TransferID+"/steps", nil)
	require.Equal(t, http.StatusOK, code)
	steps := decodeData[api.StepsResponse](t, resp).Steps
	require.GreaterOrEqual(t, len(steps), 2)
	assert.Equal(t, transfer.StepInitiated, steps[0].Name)
	assert.Equal(t, transfer.StepConsultRoomCreated, steps[1].Name)

	code, _ = env.do(t, http.MethodGet, "/api/transfers/transfer_missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, http.MethodGet, "/api/transfers/transfer_missing/steps", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTransferHandler_WarmTransfer(t *testing.T) {
	env := newTestEnv(t)
	env.seedCall(t)
	ctx := context.Background()
	res := env.initiate(t, api.InitiateTransferRequest{RoomID: "room_1", TargetAgentID: "b1"})

	require.NoError(t, env.rooms.SetParticipantConnected(ctx, res.ConsultRoomID, "a1", true))
	require.NoError(t, env.rooms.SetParticipantConnected(ctx, res.ConsultRoomID, "b1", true))
	require.Eventually(t, func() bool {
		tr, ok := env.engine.GetStatus(ctx, res.TransferID)
		return ok && tr.HasStep(transfer.StepAgentsConnected)
	}, 5*time.Second, 10*time.Millisecond)

	tokenPath := "/api/transfers/" + res.TransferID + "/agent-b-token?identity="
	code, _ := env.do(t, http.MethodGet, tokenPath+"b1", nil)
	assert.Equal(t, http.StatusConflict, code, "no credential before completion")

	path := "/api/transfers/" + res.TransferID + "/consultation-complete"
	code, resp := env.do(t, http.MethodPost, path, api.ConsultationCompleteRequest{AgentIdentity: "c1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, string(types.ErrUnauthorized), resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, path, api.ConsultationCompleteRequest{AgentIdentity: "a1", Notes: "ready"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[api.TransferActionResponse](t, resp).Success)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := env.engine.Wait(waitCtx, res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, final.Status)
	assert.Equal(t, "room_1", final.TargetRoom)

	code, resp = env.do(t, http.MethodGet, tokenPath+"b1", nil)
	require.Equal(t, http.StatusOK, code, "%+v", resp.Error)
	cred := decodeData[api.HandoffTokenResponse](t, resp)
	assert.Equal(t, "room_1", cred.RoomID)
	assert.Equal(t, "b1", cred.Identity)
	assert.Equal(t, final.AgentBToken, cred.Token)
	assert.Equal(t, "wss://media.example", cred.LiveKitURL)

	code, resp = env.do(t, http.MethodGet, tokenPath+"a1", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotContains(t, string(resp.Data), final.AgentBToken)
	code, _ = env.do(t, http.MethodGet, "/api/transfers/transfer_missing/agent-b-token?identity=b1", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = env.do(t, http.MethodGet, "/api/transfers?status=completed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decodeData[api.TransferListResponse](t, resp).Total)

	code, resp = env.do(t, http.MethodPost, "/api/transfers/"+res.TransferID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(types.ErrInvalidState), resp.Error.Code)
}

func TestTransferHandler_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.seedCall(t)
	res := env.initiate(t, api.InitiateTransferRequest{RoomID: "room_1", TargetAgentID: "b1"})

	code, resp := env.do(t, http.MethodPost, "/api/transfers/"+res.TransferID+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, transfer.StatusCancelled, decodeData[api.TransferActionResponse](t, resp).Status)

	_, ok := env.rooms.GetRoomInfo(context.Background(), res.ConsultRoomID)
	assert.False(t, ok, "consultation room is deleted")

	code, _ = env.do(t, http.MethodPost, "/api/transfers/transfer_missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTransferHandler_ListValidation(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/api/transfers?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/api/transfers?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := env.do(t, http.MethodGet, "/api/transfers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, decodeData[api.TransferListResponse](t, resp).Total)
}
