package recording

// Stream updates are published as StreamUpdated and forwarded unchanged.
const exStreamUpdated = MsgStreamUpdated
