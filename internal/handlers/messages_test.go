package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-server/internal/delivery"
	"chat-server/internal/mocks"
	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

func setupMessagesRouter(handler *MessagesHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/mensajes/entre-usuarios", handler.GetConversation)
	r.GET("/mensajes/ultimo", handler.GetLast)
	r.GET("/mensajes/no-leidos", handler.GetUnread)
	r.GET("/mensajes/buscar", handler.Search)
	r.POST("/mensajes", handler.Send)
	r.PUT("/mensajes/:mensajeId/leido", handler.MarkRead)
	r.PUT("/mensajes/:mensajeId/entregado", handler.MarkDelivered)
	r.POST("/mensajes/:mensajeId/reaccion", handler.AddReaction)
	r.DELETE("/mensajes/:mensajeId/reaccion", handler.RemoveReaction)
	r.DELETE("/mensajes/:mensajeId", handler.Delete)
	return r
}

func newMessagesHandler() (*MessagesHandler, *mocks.MessageRepositoryMock, *mocks.UserRepositoryMock) {
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewMessagesHandler(messages, users, delivery.NewReconciler(messages))
	return handler, messages, users
}

func TestGetConversationReversesToOldestFirst(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	// Repository pages newest first.
	stored := []models.Message{
		{ID: 3, SenderID: "u1", ReceiverID: "u2", Content: "tercero"},
		{ID: 2, SenderID: "u2", ReceiverID: "u1", Content: "segundo"},
		{ID: 1, SenderID: "u1", ReceiverID: "u2", Content: "primero"},
	}
	messages.On("ListBetween", mock.Anything, "u1", "u2", 50, 0).Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/mensajes/entre-usuarios?usuario1=u1&usuario2=u2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	msgs := resp["mensajes"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "primero", msgs[0].(map[string]any)["mensaje"])
	assert.Equal(t, "tercero", msgs[2].(map[string]any)["mensaje"])
}

func TestGetConversationForbiddenForOutsider(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/mensajes/entre-usuarios?usuario1=u2&usuario2=u3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "ListBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetLastNoHistory(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	messages.On("LastBetween", mock.Anything, "u1", "u2").
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/mensajes/ultimo?usuario1=u1&usuario2=u2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["ok"])
	assert.Nil(t, resp["mensaje"])
}

func TestGetUnread(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	messages.On("ListUnread", mock.Anything, "u1").
		Return([]models.Message{{ID: 4, SenderID: "u2", ReceiverID: "u1"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/mensajes/no-leidos", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])
}

func TestSearchBetween(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	messages.On("SearchBetween", mock.Anything, "u1", "u2", "hola", 20).
		Return([]models.Message{{ID: 1, Content: "hola"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/mensajes/buscar?usuario1=u1&usuario2=u2&query=hola", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])
}

func TestSendSuccess(t *testing.T) {
	handler, messages, users := newMessagesHandler()
	router := setupMessagesRouter(handler)

	users.On("GetUser", mock.Anything, "u2").Return(models.User{ID: "u2"}, nil).Once()
	created := models.Message{ID: 11, SenderID: "u1", ReceiverID: "u2", Content: "hola", Type: models.TypeText, State: models.StateSent}
	messages.On("CreateMessage", mock.Anything, "u1", "u2", "hola", models.TypeText, (*int)(nil)).Return(created, nil).Once()

	body := bytes.NewBufferString(`{"receptor":"u2","contenido":"hola"}`)
	req := httptest.NewRequest(http.MethodPost, "/mensajes", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "Mensaje enviado correctamente", resp["msg"])
	messages.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestSendUnknownReceiver(t *testing.T) {
	handler, messages, users := newMessagesHandler()
	router := setupMessagesRouter(handler)

	users.On("GetUser", mock.Anything, "u9").Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(`{"receptor":"u9","contenido":"hola"}`)
	req := httptest.NewRequest(http.MethodPost, "/mensajes", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Usuario receptor no encontrado", decodeBody(t, rec)["msg"])
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendRejectsUnknownType(t *testing.T) {
	handler, _, users := newMessagesHandler()
	router := setupMessagesRouter(handler)

	body := bytes.NewBufferString(`{"receptor":"u2","contenido":"hola","tipo":"holografia"}`)
	req := httptest.NewRequest(http.MethodPost, "/mensajes", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestMarkReadByReceiver(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1", State: models.StateDelivered}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()
	messages.On("UpdateState", mock.Anything, 5, models.StateRead, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/mensajes/5/leido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkReadForbiddenForSender(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u1", ReceiverID: "u2", State: models.StateDelivered}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/mensajes/5/leido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadAlreadyRead(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1", State: models.StateRead}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Twice()
	messages.On("UpdateState", mock.Anything, 5, models.StateRead, mock.Anything).
		Return(repositories.ErrStaleState).Once()

	req := httptest.NewRequest(http.MethodPut, "/mensajes/5/leido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Idempotent from the client's point of view.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mensaje ya estaba marcado como leído", decodeBody(t, rec)["msg"])
}

func TestMarkDeliveredByReceiver(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1", State: models.StateSent}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Twice()
	messages.On("UpdateState", mock.Anything, 5, models.StateDelivered, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/mensajes/5/entregado", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkDeliveredForbiddenForStranger(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u3", State: models.StateSent}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/mensajes/5/entregado", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddReactionByReceiver(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1"}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Twice()
	messages.On("SetReaction", mock.Anything, 5, "u1", models.ReactionLove).Return(nil).Once()

	body := bytes.NewBufferString(`{"tipo":"love"}`)
	req := httptest.NewRequest(http.MethodPost, "/mensajes/5/reaccion", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestAddReactionUnknownKind(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1"}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()

	body := bytes.NewBufferString(`{"tipo":"meh"}`)
	req := httptest.NewRequest(http.MethodPost, "/mensajes/5/reaccion", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Tipo de reacción no válido", decodeBody(t, rec)["msg"])
	messages.AssertNotCalled(t, "SetReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveReaction(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1"}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Twice()
	messages.On("ClearReaction", mock.Anything, 5, "u1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/mensajes/5/reaccion", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestDeleteBySender(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u1", ReceiverID: "u2"}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()
	messages.On("SoftDelete", mock.Anything, 5, "u1", mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/mensajes/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mensaje eliminado correctamente", decodeBody(t, rec)["msg"])
}

func TestDeleteByReceiverForbidden(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	stored := models.Message{ID: 5, SenderID: "u2", ReceiverID: "u1"}
	messages.On("GetMessage", mock.Anything, 5).Return(stored, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/mensajes/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No tienes permisos para eliminar este mensaje", decodeBody(t, rec)["msg"])
	messages.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageIDParamRejectsGarbage(t *testing.T) {
	handler, messages, _ := newMessagesHandler()
	router := setupMessagesRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/mensajes/abc/leido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messages.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything)
}
