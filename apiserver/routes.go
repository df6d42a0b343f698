package apiserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/smsc"
	"github.com/netrixframework/smscsim/types"
)

// messageRequest is the JSON body of /submit and /mo. The short message is
// sent as text instead of the base64 form of types.SubmitSM.
type messageRequest struct {
	SeqNo              uint32 `json:"seq_no"`
	ServiceType        string `json:"service_type"`
	SourceAddr         string `json:"source_addr"`
	DestAddr           string `json:"dest_addr"`
	EsmClass           uint8  `json:"esm_class"`
	DataCoding         uint8  `json:"data_coding"`
	RegisteredDelivery uint8  `json:"registered_delivery"`
	ShortMessage       string `json:"short_message"`
}

func (r *messageRequest) pdu() *types.SubmitSM {
	return &types.SubmitSM{
		SeqNo:              r.SeqNo,
		ServiceType:        r.ServiceType,
		SourceAddr:         r.SourceAddr,
		DestAddr:           r.DestAddr,
		EsmClass:           r.EsmClass,
		DataCoding:         r.DataCoding,
		RegisteredDelivery: r.RegisteredDelivery,
		ShortMessage:       []byte(r.ShortMessage),
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, smsc.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, smsc.ErrNotRunning), errors.Is(err, types.ErrChannelFull), errors.Is(err, types.ErrChannelClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, smsc.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, smsc.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, types.ErrNoData):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// HandleSubmit is the handler for the route `/submit`
// which is used by ESMEs to submit a message
func (srv *APIServer) HandleSubmit(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		srv.Logger.With(log.LogParams{"error": err}).Info("Bad submit request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	id, err := srv.sim.Submit(req.pdu())
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id})
}

// HandleQuery is the handler for the route `/messages/:id`
func (srv *APIServer) HandleQuery(c *gin.Context) {
	m, err := srv.sim.Query(c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m.View())
}

// HandleCancel is the handler for DELETE on `/messages/:id`
func (srv *APIServer) HandleCancel(c *gin.Context) {
	m, err := srv.sim.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m.View())
}

// HandleMO is the handler for the route `/mo`. It queues a mobile
// originated message for delivery to the registered receiver and replies
// with the sequence number assigned by the SMSC.
func (srv *APIServer) HandleMO(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		srv.Logger.With(log.LogParams{"error": err}).Info("Bad MO request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	pdu := req.pdu()
	if err := srv.sim.InjectMO(pdu); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "seq_no": pdu.SeqNo})
}

type receiverRequest struct {
	Addr string `json:"addr" binding:"required"`
}

// HandleReceiverPost is the handler for the route `/receiver` for a POST request.
// The receiving ESME registers the address MO messages are delivered to.
func (srv *APIServer) HandleReceiverPost(c *gin.Context) {
	var req receiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		srv.Logger.With(log.LogParams{"error": err}).Info("Bad receiver request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	srv.receivers.SetReceiver(req.Addr)
	srv.Logger.With(log.LogParams{"addr": req.Addr}).Info("Registered receiver")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReceiverGet returns the registered receiver address
func (srv *APIServer) HandleReceiverGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addr": srv.receivers.Receiver()})
}

// HandleStats is the handler for the route `/stats`
func (srv *APIServer) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, srv.sim.Stats())
}

// HandleReceipts drains the queued delivery receipts
func (srv *APIServer) HandleReceipts(c *gin.Context) {
	receipts := srv.ctx.Outbound.Drain()
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
